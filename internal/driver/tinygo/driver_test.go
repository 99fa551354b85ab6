package tinygo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/blite/internal/adapter"
	"github.com/srg/blite/internal/device"
	"github.com/srg/blite/internal/driver"
	"github.com/srg/blite/internal/power"
	"github.com/srg/blite/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"tinygo.org/x/bluetooth"
)

func TestKeyOf_NormalizesSpelling(t *testing.T) {
	assert.Equal(t,
		keyOf("180D", "2A37"),
		keyOf("0000180d-0000-1000-8000-00805f9b34fb", "00002a37-0000-1000-8000-00805f9b34fb"),
		"lookups MUST not depend on UUID spelling")
}

func TestDriver_GATTRequiresLink(t *testing.T) {
	d := New(nil, nil)

	assert.ErrorIs(t, d.Read("180d", "2a37"), driver.ErrNotConnected)
	assert.ErrorIs(t, d.Write("180d", "2a37", []byte{1}, true), driver.ErrNotConnected)
	assert.ErrorIs(t, d.SetNotify("180d", "2a37", true), driver.ErrNotConnected)
	assert.ErrorIs(t, d.RequestMTU(517), driver.ErrNotConnected)
	assert.ErrorIs(t, d.DiscoverServices(), driver.ErrNotConnected)
	assert.ErrorIs(t, d.CancelConnection(), driver.ErrNotConnected)
	assert.ErrorIs(t, d.StartScan(), errNotStarted)
	assert.ErrorIs(t, d.Connect("aa:bb"), errNotStarted)
	assert.False(t, d.Scanning())
	assert.Equal(t, Name, d.Name())
}

// MockRadio implements radio. Scan and Connect block on per-call gates so
// tests decide when each one returns.
type MockRadio struct {
	mock.Mock

	mu           sync.Mutex
	onConnection func(address string, connected bool)
	scans        chan chan error
	dials        chan chan dialResult
}

type dialResult struct {
	peer peer
	err  error
}

func NewMockRadio() *MockRadio {
	return &MockRadio{
		scans: make(chan chan error, 4),
		dials: make(chan chan dialResult, 4),
	}
}

func (m *MockRadio) Enable() error { return m.Called().Error(0) }

func (m *MockRadio) SetConnectHandler(h func(address string, connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnection = h
}

func (m *MockRadio) Scan(found func(device.Advertisement)) error {
	gate := make(chan error, 1)
	m.scans <- gate
	found(testutils.CreateMockAdvertisement("HRM", "aa:bb:cc:dd:ee:ff", -40).Build())
	return <-gate
}

func (m *MockRadio) StopScan() error { return m.Called().Error(0) }

func (m *MockRadio) Connect(address string) (peer, error) {
	gate := make(chan dialResult, 1)
	m.dials <- gate
	r := <-gate
	return r.peer, r.err
}

// peerDisconnected raises the adapter's connection-lost callback.
func (m *MockRadio) peerDisconnected(address string) {
	m.mu.Lock()
	h := m.onConnection
	m.mu.Unlock()
	h(address, false)
}

// MockPeer implements peer
type MockPeer struct {
	mock.Mock
}

// newPeer returns a peer that tolerates the Disconnect issued by Close.
func newPeer() *MockPeer {
	p := &MockPeer{}
	p.On("Disconnect").Return(nil).Maybe()
	return p
}

func (m *MockPeer) Disconnect() error { return m.Called().Error(0) }

func (m *MockPeer) DiscoverServices(uuids []bluetooth.UUID) ([]bluetooth.DeviceService, error) {
	args := m.Called(uuids)
	svcs, _ := args.Get(0).([]bluetooth.DeviceService)
	return svcs, args.Error(1)
}

type DriverTestSuite struct {
	suite.Suite
	radio    *MockRadio
	delegate *testutils.RecordingDelegate
	driver   *Driver
}

func (s *DriverTestSuite) SetupTest() {
	s.radio = NewMockRadio()
	s.radio.On("StopScan").Return(nil).Maybe()
	s.delegate = testutils.NewRecordingDelegate()
	s.driver = newDriver(s.radio, power.Static{State: adapter.On}, testutils.NewTestHelper(s.T()).Logger)
	s.driver.casing = device.LowerCase
}

func (s *DriverTestSuite) TearDownTest() {
	s.NoError(s.driver.Close())
}

func (s *DriverTestSuite) start() {
	s.radio.On("Enable").Return(nil).Once()
	s.Require().NoError(s.driver.Start(context.Background(), s.delegate))
	s.Equal(adapter.On, s.delegate.Next(s.T(), "AdapterStateChanged").Args[0])
}

func (s *DriverTestSuite) nextScan() chan error {
	select {
	case gate := <-s.radio.scans:
		return gate
	case <-time.After(time.Second):
		s.FailNow("scan was not started")
		return nil
	}
}

func (s *DriverTestSuite) nextDial() chan dialResult {
	select {
	case gate := <-s.radio.dials:
		return gate
	case <-time.After(time.Second):
		s.FailNow("dial was not started")
		return nil
	}
}

// connect completes a dial with p and waits for Connected.
func (s *DriverTestSuite) connect(p *MockPeer) {
	s.Require().NoError(s.driver.Connect("aa:bb:cc:dd:ee:ff"))
	s.nextDial() <- dialResult{peer: p}
	s.Equal("aa:bb:cc:dd:ee:ff", s.delegate.Next(s.T(), "Connected").Args[0])
}

func (s *DriverTestSuite) TestStart_EnableFailureReportsOff() {
	s.driver.power = nil
	s.radio.On("Enable").Return(errors.New("no adapter")).Once()

	s.Require().NoError(s.driver.Start(context.Background(), s.delegate))
	s.Equal(adapter.Off, s.delegate.Next(s.T(), "AdapterStateChanged").Args[0])
}

func (s *DriverTestSuite) TestScan_ForwardsAdvertisementsUntilStopped() {
	s.start()

	s.Require().NoError(s.driver.StartScan())
	gate := s.nextScan()
	s.True(s.driver.Scanning())
	s.ErrorIs(s.driver.StartScan(), errScanInProgress)

	adv := s.delegate.Next(s.T(), "DeviceDiscovered").Args[0].(device.Advertisement)
	s.Equal("HRM", adv.LocalName())

	s.Require().NoError(s.driver.StopScan())
	s.False(s.driver.Scanning())
	s.radio.AssertNumberOfCalls(s.T(), "StopScan", 1)
	gate <- nil
}

func (s *DriverTestSuite) TestScan_EndingOnItsOwnClearsFlag() {
	s.start()

	s.Require().NoError(s.driver.StartScan())
	s.nextScan() <- errors.New("adapter reset")

	s.Eventually(func() bool { return !s.driver.Scanning() }, time.Second, 5*time.Millisecond)
	s.Require().NoError(s.driver.StopScan())
	s.radio.AssertNotCalled(s.T(), "StopScan")
}

func (s *DriverTestSuite) TestScan_OldScanEndingDoesNotClearNewScan() {
	// GOAL: Verify the goroutine of a stopped scan cannot clear the flag of the scan that replaced it
	//
	// TEST SCENARIO: Scan #1 → stop → scan #2 → scan #1 returns → still scanning → StopScan reaches the radio

	s.start()

	s.Require().NoError(s.driver.StartScan())
	first := s.nextScan()
	s.Require().NoError(s.driver.StopScan())

	s.Require().NoError(s.driver.StartScan())
	second := s.nextScan()

	first <- nil
	s.Never(func() bool { return !s.driver.Scanning() }, 50*time.Millisecond, 5*time.Millisecond,
		"a finished old scan MUST NOT clear the running scan")
	s.ErrorIs(s.driver.StartScan(), errScanInProgress)

	s.Require().NoError(s.driver.StopScan())
	s.radio.AssertNumberOfCalls(s.T(), "StopScan", 2)
	second <- nil
}

func (s *DriverTestSuite) TestConnect_ReportsConnected() {
	s.start()
	s.connect(newPeer())

	s.ErrorIs(s.driver.Connect("aa:bb:cc:dd:ee:ff"), errBusy)
}

func (s *DriverTestSuite) TestConnect_DialFailure() {
	s.start()

	s.Require().NoError(s.driver.Connect("aa:bb"))
	s.nextDial() <- dialResult{err: errors.New("le-connection-abort-by-local")}

	call := s.delegate.Next(s.T(), "ConnectFailed")
	s.Equal("aa:bb", call.Args[0])
	s.ErrorContains(call.Err(), "le-connection-abort-by-local")
	s.NotErrorIs(call.Err(), context.Canceled)
}

func (s *DriverTestSuite) TestConnect_AbortDropsLateLink() {
	s.start()
	dropped := make(chan struct{})
	p := &MockPeer{}
	p.On("Disconnect").Run(func(mock.Arguments) { close(dropped) }).Return(nil).Once()

	s.Require().NoError(s.driver.Connect("aa:bb"))
	gate := s.nextDial()
	s.Require().NoError(s.driver.CancelConnection())
	gate <- dialResult{peer: p}

	call := s.delegate.Next(s.T(), "ConnectFailed")
	s.ErrorIs(call.Err(), driver.ErrConnectAborted)
	select {
	case <-dropped:
	case <-time.After(time.Second):
		s.Fail("a link established after abort MUST be dropped")
	}
	s.ErrorIs(s.driver.Read("180d", "2a37"), driver.ErrNotConnected)
}

func (s *DriverTestSuite) TestConnect_AbandonedDialDoesNotDisturbRetry() {
	// GOAL: Verify a cancelled dial that returns late cannot fail or orphan the retry
	//
	// TEST SCENARIO: Dial #1 → cancel → Connect again → dial #1 returns → no callback → retry connects

	s.start()

	s.Require().NoError(s.driver.Connect("aa:bb"))
	first := s.nextDial()
	s.Require().NoError(s.driver.CancelConnection())

	s.Require().NoError(s.driver.Connect("aa:bb"), "retry MUST be accepted once the first dial is cancelled")
	second := s.nextDial()

	first <- dialResult{err: errors.New("canceled")}
	s.delegate.None(s.T(), 50*time.Millisecond)

	second <- dialResult{peer: newPeer()}
	s.Equal("aa:bb", s.delegate.Next(s.T(), "Connected").Args[0])
}

func (s *DriverTestSuite) TestCancelConnection_ReportsDisconnectOnce() {
	s.start()
	p := &MockPeer{}
	p.On("Disconnect").Return(nil).Once()
	s.connect(p)

	s.Require().NoError(s.driver.CancelConnection())
	call := s.delegate.Next(s.T(), "Disconnected")
	s.Equal("aa:bb:cc:dd:ee:ff", call.Args[0])
	s.NoError(call.Err())

	s.radio.peerDisconnected("aa:bb:cc:dd:ee:ff")
	s.delegate.None(s.T(), 50*time.Millisecond)
	s.ErrorIs(s.driver.CancelConnection(), driver.ErrNotConnected)
}

func (s *DriverTestSuite) TestPeripheralDisconnect() {
	s.start()
	s.connect(newPeer())

	s.radio.peerDisconnected("AA:BB:CC:DD:EE:FF")

	call := s.delegate.Next(s.T(), "Disconnected")
	s.ErrorIs(call.Err(), driver.ErrNotConnected)
	s.ErrorIs(s.driver.Read("180d", "2a37"), driver.ErrNotConnected)
}

func (s *DriverTestSuite) TestDiscoverServices_Error() {
	s.start()
	p := newPeer()
	p.On("DiscoverServices", []bluetooth.UUID(nil)).Return(nil, errors.New("gatt busy")).Once()
	s.connect(p)

	s.Require().NoError(s.driver.DiscoverServices())

	call := s.delegate.Next(s.T(), "ServicesDiscovered")
	s.ErrorContains(call.Err(), "gatt busy")
}

func TestDriverTestSuite(t *testing.T) {
	suite.Run(t, new(DriverTestSuite))
}
