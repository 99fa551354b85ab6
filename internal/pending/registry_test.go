package pending

import (
	"testing"
	"time"

	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingOp counts every completion it receives.
type recordingOp struct {
	resolved []any
	failed   []*device.Error
}

func (o *recordingOp) Resolve(payload any)    { o.resolved = append(o.resolved, payload) }
func (o *recordingOp) Fail(err *device.Error) { o.failed = append(o.failed, err) }
func (o *recordingOp) completions() int       { return len(o.resolved) + len(o.failed) }

type RegistryTestSuite struct {
	suite.Suite
	queue    *testutils.ManualQueue
	registry *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.queue = testutils.NewManualQueue()
	s.registry = New(s.queue.Post, testutils.NewTestHelper(s.T()).Logger)
}

func (s *RegistryTestSuite) waitQueued(n int) {
	s.Require().Eventually(func() bool { return s.queue.Len() >= n }, time.Second, time.Millisecond)
}

func (s *RegistryTestSuite) TestResolveExactlyOnce() {
	op := &recordingOp{}
	s.registry.Register(Read, op, 0)

	s.True(s.registry.Resolve(Read, []byte{1}))
	s.False(s.registry.Resolve(Read, []byte{2}), "second resolve MUST be a no-op")
	s.False(s.registry.Fail(Read, device.ErrIsNotConnected), "fail after resolve MUST be a no-op")

	s.Equal(1, op.completions())
	s.Equal([]any{[]byte{1}}, op.resolved)
	s.False(s.registry.Pending(Read))
}

func (s *RegistryTestSuite) TestTimeoutFailsWithKind() {
	op := &recordingOp{}
	s.registry.Register(MTU, op, 2*time.Millisecond)

	s.waitQueued(1)
	s.queue.Drain()

	s.Require().Len(op.failed, 1)
	s.ErrorIs(op.failed[0], device.ErrTimeout)
	s.Contains(op.failed[0].Error(), "MTU", "timeout error MUST carry the kind")
	s.False(s.registry.Pending(MTU))
}

func (s *RegistryTestSuite) TestCallbackBeatsQueuedTimeout() {
	// TEST SCENARIO: the timer fired and posted, then the driver callback
	// resolved the slot before the timeout closure ran
	op := &recordingOp{}
	s.registry.Register(Write, op, time.Millisecond)
	s.waitQueued(1)

	s.True(s.registry.Resolve(Write, nil))
	s.queue.Drain()

	s.Equal(1, op.completions(), "resolver MUST fire exactly once")
	s.Empty(op.failed)
}

func (s *RegistryTestSuite) TestTimeoutBeatsLateCallback() {
	op := &recordingOp{}
	s.registry.Register(DiscoverServices, op, time.Millisecond)
	s.waitQueued(1)
	s.queue.Drain()

	s.False(s.registry.Resolve(DiscoverServices, "late"))
	s.Equal(1, op.completions())
	s.Len(op.failed, 1)
}

func (s *RegistryTestSuite) TestTimeoutOfSupersededOpDoesNotFailReplacement() {
	first := &recordingOp{}
	s.registry.Register(Read, first, time.Millisecond)
	s.waitQueued(1)

	second := &recordingOp{}
	s.registry.Register(Read, second, 0)
	s.queue.Drain()

	s.Require().Len(first.failed, 1)
	s.ErrorIs(first.failed[0], device.ErrSuperseded)
	s.Zero(second.completions(), "stale timeout MUST NOT touch the replacement")
	s.True(s.registry.Pending(Read))
}

func (s *RegistryTestSuite) TestFailAll() {
	ops := map[Kind]*recordingOp{}
	for _, k := range []Kind{Scan, Connect, Read, Notifications} {
		ops[k] = &recordingOp{}
		s.registry.Register(k, ops[k], time.Hour)
	}

	s.Equal(4, s.registry.FailAll(device.ErrBLEIsOff))
	s.Zero(s.registry.Len())
	for k, op := range ops {
		s.Require().Len(op.failed, 1, "kind %s", k)
		s.ErrorIs(op.failed[0], device.ErrBLEIsOff)
	}
	s.Zero(s.registry.FailAll(device.ErrBLEIsOff), "nothing left to fail")
}

func (s *RegistryTestSuite) TestFailAllExcept() {
	scan, read, write := &recordingOp{}, &recordingOp{}, &recordingOp{}
	s.registry.Register(Scan, scan, 0)
	s.registry.Register(Read, read, 0)
	s.registry.Register(Write, write, 0)

	s.Equal(2, s.registry.FailAllExcept(device.ErrIsNotConnected, Scan, StopScan))
	s.Zero(scan.completions())
	s.Len(read.failed, 1)
	s.Len(write.failed, 1)
	s.Equal([]Kind{Scan}, s.registry.Kinds())
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestRegistry_ExactlyOnceAcrossSequences(t *testing.T) {
	// GOAL: for every ordering of callback / timeout / explicit completion the
	// resolver fires exactly once
	type step func(r *Registry, q *testutils.ManualQueue)

	resolve := func(r *Registry, _ *testutils.ManualQueue) { r.Resolve(Connect, true) }
	fail := func(r *Registry, _ *testutils.ManualQueue) { r.Fail(Connect, device.ErrConnectionFailed) }
	failAll := func(r *Registry, _ *testutils.ManualQueue) { r.FailAll(device.ErrBLEIsOff) }
	fire := func(_ *Registry, q *testutils.ManualQueue) { q.Drain() }

	sequences := map[string][]step{
		"resolve,fire":         {resolve, fire},
		"fire,resolve":         {fire, resolve},
		"fail,resolve,fire":    {fail, resolve, fire},
		"failAll,fire,resolve": {failAll, fire, resolve},
		"resolve,resolve":      {resolve, resolve},
		"fire,failAll,fail":    {fire, failAll, fail},
	}

	for name, seq := range sequences {
		t.Run(name, func(t *testing.T) {
			q := testutils.NewManualQueue()
			r := New(q.Post, nil)
			op := &recordingOp{}
			r.Register(Connect, op, time.Millisecond)
			require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)

			for _, st := range seq {
				st(r, q)
			}
			assert.Equal(t, 1, op.completions(), "MUST resolve exactly once")
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "DISCOVER_SERVICES", DiscoverServices.String())
	assert.Equal(t, "NOTIFICATIONS", Notifications.String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())
	assert.Len(t, Kinds, len(kindNames))
}
