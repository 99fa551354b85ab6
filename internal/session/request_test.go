package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInflight_AbandonedRequestOwesOneAnswer(t *testing.T) {
	r := newInflight[string]()

	first := r.begin("2a37")
	r.abandon(first)
	r.begin("2a37")

	assert.False(t, r.answer("2a37"), "first answer belongs to the abandoned request")
	assert.True(t, r.answer("2a37"))
	assert.False(t, r.answer("2a37"), "a request is answered once")
}

func TestInflight_SettledRequestOwesNothing(t *testing.T) {
	r := newInflight[string]()

	req := r.begin("2a37")
	r.settle(req)
	r.abandon(req)

	r.begin("2a37")
	assert.True(t, r.answer("2a37"))
}

func TestInflight_AbandonAfterAnswerIsNoop(t *testing.T) {
	r := newInflight[string]()

	req := r.begin("2a37")
	assert.True(t, r.answer("2a37"))
	r.abandon(req)

	r.begin("2a37")
	assert.True(t, r.answer("2a37"))
}

func TestInflight_Reset(t *testing.T) {
	r := newInflight[notifyTarget]()
	key := notifyTarget{key: "2a37", enable: true}

	r.abandon(r.begin(key))
	r.reset()

	assert.False(t, r.answer(key), "nothing is waiting after reset")
	r.begin(key)
	assert.True(t, r.answer(key), "owed answers are forgotten on reset")
}
