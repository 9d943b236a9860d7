package index

// Truncate cuts text to maxTokens tokens with the encoding used by the indexer.
func Truncate(text string, maxTokens int) (string, bool, error) {
	tr, err := newTruncator(maxTokens)
	if err != nil {
		return "", false, err
	}
	out, cut := tr.truncate(text)
	return out, cut, nil
}
