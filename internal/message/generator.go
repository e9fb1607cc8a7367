// Package message picks the daily devotional content for a recipient.
package message

import (
	"math/rand"
	"sync"
	"time"

	"dailyverse/internal/model"
)

// TestTitlePrefix marks messages sent from the manual test trigger.
const TestTitlePrefix = "[TEST] "

// Generator draws uniformly from the recipient's tier pool.
// It is safe for concurrent use; a fixed seed makes the sequence reproducible.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSeededGenerator seeds from the wall clock.
func NewTimeSeededGenerator() *Generator {
	return NewGenerator(time.Now().UnixNano())
}

// Generate returns a message for tier; unknown tiers draw from the beginner pool.
func (g *Generator) Generate(tier model.ExperienceTier) model.GeneratedMessage {
	tier = model.ParseTier(string(tier))
	pool := pools[tier]

	g.mu.Lock()
	e := pool[g.rng.Intn(len(pool))]
	g.mu.Unlock()

	return model.GeneratedMessage{
		Title:              e.title,
		Body:               e.body,
		ScriptureText:      e.scripture,
		ScriptureReference: e.reference,
		Tier:               tier,
	}
}

// AsTest returns msg with its title marked as a test send.
func AsTest(msg model.GeneratedMessage) model.GeneratedMessage {
	msg.Title = TestTitlePrefix + msg.Title
	return msg
}
