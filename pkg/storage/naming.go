package storage

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	maxTopicPrefix = 30
	idLayout       = "20060102_150405.000000000"
)

// IDGenerator derives video ids from a strictly increasing UTC clock.
// Lexical order of ids equals creation order within a process; a random
// suffix keeps ids from different processes apart.
type IDGenerator struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewIDGenerator returns a generator using the wall clock
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

var defaultIDs = NewIDGenerator()

// Next returns a new id and the timestamp it was derived from
func (g *IDGenerator) Next() (string, time.Time) {
	g.mu.Lock()
	t := g.now().UTC().Round(0)
	if !t.After(g.last) {
		t = g.last.Add(time.Nanosecond)
	}
	g.last = t
	g.mu.Unlock()

	return strings.Replace(t.Format(idLayout), ".", "_", 1) + "-" + randomSuffix(), t
}

func randomSuffix() string {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "0000"
	}
	return hex.EncodeToString(b[:])
}

// SanitizeTopic keeps letters, digits, hyphens, underscores and spaces and
// truncates to a bounded prefix so the result is safe as a file or object name
func SanitizeTopic(topic string) string {
	var b strings.Builder
	n := 0
	for _, r := range topic {
		if n == maxTopicPrefix {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			b.WriteRune(r)
			n++
		}
	}
	return strings.TrimSpace(b.String())
}

// VideoFilename builds "{sanitized topic}_{id}.mp4"
func VideoFilename(topic, id string) string {
	safe := SanitizeTopic(topic)
	if safe == "" {
		safe = "video"
	}
	return safe + "_" + id + ".mp4"
}

// RouteURL is the retrieval route served by the API for every backend
func RouteURL(id string) string {
	return "/api/videos/" + id
}
