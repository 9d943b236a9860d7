package diffs

var Clip = clip

const MaxDiffBytes = maxDiffBytes
