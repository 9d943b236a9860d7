package tool

var ConvertJSONSchemaToGenai = convertJSONSchemaToGenai
