package index

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// BPE files are embedded, no download at runtime
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const (
	defaultEncoding  = "cl100k_base"
	defaultMaxTokens = 2048
)

type truncator struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
}

func newTruncator(maxTokens int) (*truncator, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load tiktoken encoding", goerr.V("encoding", defaultEncoding))
	}
	return &truncator{enc: enc, maxTokens: maxTokens}, nil
}

// truncate cuts text to at most maxTokens tokens. It reports whether the text was shortened.
func (x *truncator) truncate(text string) (string, bool) {
	if x.maxTokens <= 0 {
		return text, false
	}
	tokens := x.enc.Encode(text, nil, nil)
	if len(tokens) <= x.maxTokens {
		return text, false
	}
	// a token boundary may fall inside a multibyte character
	return strings.ToValidUTF8(x.enc.Decode(tokens[:x.maxTokens]), ""), true
}
