package helper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// NewID returns a UUID string, falling back to a timestamp when the random
// source is exhausted so callers always get a usable id.
func NewID() string {
	id, err := GenerateUUID()
	if err != nil {
		log.Warn().Err(err).Msg("uuid generation failed, using timestamp id")
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Msg("Error pretty printing")
	}
	fmt.Println(string(b))
}
