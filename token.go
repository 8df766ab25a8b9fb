package docrender

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// tokenBytes is the batch token entropy; 4 bytes give 8 hex characters.
const tokenBytes = 4

// artifactPattern is the only shape of filename the artifact store resolves.
var (
	artifactPattern = regexp.MustCompile(`^[a-f0-9]{8}_page_\d+\.png$`)
	tokenPattern    = regexp.MustCompile(`^[a-f0-9]{8}$`)
)

// TokenSource produces batch tokens: 8 lowercase hex characters.
type TokenSource interface {
	Token() (string, error)
}

// randomTokens reads token bytes from a random source.
type randomTokens struct {
	r io.Reader
}

// NewRandomTokenSource returns a TokenSource backed by crypto/rand.
func NewRandomTokenSource() TokenSource {
	return &randomTokens{r: rand.Reader}
}

func (t *randomTokens) Token() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(t.r, b); err != nil {
		return "", fmt.Errorf("generating batch token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// artifactName derives the filename of one rasterized page.
func artifactName(token string, page int) string {
	return token + "_page_" + strconv.Itoa(page) + ".png"
}

func validateArtifactKey(token string, page int) error {
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("%w: %q", ErrInvalidBatchToken, token)
	}
	if page < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPageNumber, page)
	}
	return nil
}
