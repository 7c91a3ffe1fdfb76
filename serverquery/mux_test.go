package serverquery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ts3query/internal/metrics"
	"ts3query/util"
)

func TestPoller_DispatchesIdleNotifications(t *testing.T) {
	f := newFakeServer(t)
	s := openSession(t, f, testOptions())
	c := &collector{}
	s.SetNotificationHandler(c)

	if err := s.RegisterEvents(context.Background(), EventServer, 0); err != nil {
		t.Fatal(err)
	}
	f.push(`notifycliententerview cfid=0 ctid=1 clid=9 client_nickname=Bob`)
	f.push(`notifyclientleftview cfid=1 ctid=0 clid=9`)

	eventually(t, "idle notifications", func() bool {
		return c.has("notifycliententerview") && c.has("notifyclientleftview")
	})
}

func TestPoller_IdleWithoutRegistrations(t *testing.T) {
	f := newFakeServer(t)
	s := openSession(t, f, testOptions())
	c := &collector{}
	s.SetNotificationHandler(c)

	f.push("notifyserveredited reasonid=10")
	time.Sleep(5 * testOptions().PollInterval)
	if n := len(c.received()); n != 0 {
		t.Fatalf("poller dispatched %d events with no registration", n)
	}

	// The buffered line is picked up by the next command instead.
	resp, err := s.Execute(context.Background(), "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(resp.Body, "notify") {
		t.Errorf("notification leaked into body %q", resp.Body)
	}
	eventually(t, "intercepted event", func() bool { return c.has("notifyserveredited") })
}

func TestPoller_NeverStealsResponses(t *testing.T) {
	f := newFakeServer(t)
	f.on("slow", func(string) []string {
		time.Sleep(5 * testOptions().PollInterval)
		return []string{"first=1", "second=2", okLine}
	})
	s := openSession(t, f, testOptions())
	s.SetNotificationHandler(&collector{})
	if err := s.RegisterEvents(context.Background(), EventTextServer, 0); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		resp, err := s.Execute(context.Background(), "slow")
		if err != nil {
			t.Fatal(err)
		}
		if resp.Body != "first=1\nsecond=2" {
			t.Fatalf("body = %q", resp.Body)
		}
	}
}

func TestPoller_DiscardsStrayLines(t *testing.T) {
	f := newFakeServer(t)
	s := openSession(t, f, testOptions())
	c := &collector{}
	s.SetNotificationHandler(c)
	if err := s.RegisterEvents(context.Background(), EventServer, 0); err != nil {
		t.Fatal(err)
	}

	f.push("cid=1 channel_name=stray")
	f.push("notifyserveredited reasonid=10")
	eventually(t, "event after stray line", func() bool { return c.has("notifyserveredited") })

	resp, err := s.Execute(context.Background(), "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(resp.Body, "stray") {
		t.Errorf("stray line leaked into body %q", resp.Body)
	}
}

func TestPoller_DetectsRemoteClose(t *testing.T) {
	f := newFakeServer(t)
	m := metrics.New()
	opts := testOptions()
	opts.Metrics = m
	s := openSession(t, f, opts)
	c := &collector{}
	s.SetNotificationHandler(c)
	if err := s.RegisterEvents(context.Background(), EventServer, 0); err != nil {
		t.Fatal(err)
	}

	f.push("notifyserveredited reasonid=10")
	f.drop()

	eventually(t, "teardown", func() bool { return m.ActiveConnections() == 0 })
	if s.IsConnected() {
		t.Error("IsConnected = true")
	}
	if len(s.Registrations()) != 0 {
		t.Errorf("registrations survived teardown: %v", s.Registrations())
	}
	eventually(t, "buffered event flushed", func() bool { return c.has("notifyserveredited") })
}

func TestDispatcher_QueuesWhileWorkersBusy(t *testing.T) {
	m := metrics.New()
	d := newDispatcher(1, util.NopLogger(), m)
	defer d.stop()

	gate := make(chan struct{})
	var mu sync.Mutex
	var got []string
	h := HandlerFunc(func(n Notification) {
		<-gate
		mu.Lock()
		got = append(got, n.Event)
		mu.Unlock()
	})

	const total = 400
	for i := 0; i < total; i++ {
		if !d.submit(h, Notification{Event: fmt.Sprintf("notify%d", i)}) {
			t.Fatalf("submit %d refused", i)
		}
	}
	if peak := m.NotificationBacklogPeak(); peak < total-2 {
		t.Errorf("backlog peak = %d, want at least %d", peak, total-2)
	}

	close(gate)
	eventually(t, "every event delivered", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == total
	})
	// One worker sees them in arrival order.
	mu.Lock()
	for i, ev := range got {
		if want := fmt.Sprintf("notify%d", i); ev != want {
			t.Fatalf("got[%d] = %q, want %q", i, ev, want)
		}
	}
	mu.Unlock()
	eventually(t, "empty backlog", func() bool { return m.NotificationBacklog() == 0 })
}

func TestDispatcher_StopDeliversAccepted(t *testing.T) {
	d := newDispatcher(2, util.NopLogger(), nil)

	gate := make(chan struct{})
	c := &collector{}
	h := HandlerFunc(func(n Notification) {
		<-gate
		c.HandleNotification(n)
	})
	for i := 0; i < 20; i++ {
		d.submit(h, Notification{Event: "notifyx"})
	}
	d.stop()
	close(gate)
	eventually(t, "accepted events delivered after stop", func() bool { return len(c.received()) == 20 })
}

func TestPoller_SlowHandlerLosesNothing(t *testing.T) {
	f := newFakeServer(t)
	opts := testOptions()
	opts.DispatchWorkers = 1
	s := openSession(t, f, opts)

	gate := make(chan struct{})
	c := &collector{}
	s.SetNotificationHandler(HandlerFunc(func(n Notification) {
		<-gate
		c.HandleNotification(n)
	}))
	if err := s.RegisterEvents(context.Background(), EventServer, 0); err != nil {
		t.Fatal(err)
	}

	const total = 400
	for i := 0; i < total; i++ {
		f.push(fmt.Sprintf("notifycliententerview clid=%d", i))
	}
	close(gate)
	eventually(t, "all notifications", func() bool { return len(c.received()) == total })
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	m := metrics.New()
	d := newDispatcher(1, util.NopLogger(), m)
	defer d.stop()

	got := make(chan string, 2)
	h := HandlerFunc(func(n Notification) {
		if n.Event == "notifybad" {
			panic("handler bug")
		}
		got <- n.Event
	})

	d.submit(h, Notification{Event: "notifybad"})
	d.submit(h, Notification{Event: "notifygood"})

	select {
	case ev := <-got:
		if ev != "notifygood" {
			t.Errorf("got %q", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after handler panic")
	}
	if m.HandlerPanics() != 1 {
		t.Errorf("panics = %d", m.HandlerPanics())
	}
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := newDispatcher(1, util.NopLogger(), nil)
	d.stop()
	d.stop()
	if d.submit(HandlerFunc(func(Notification) {}), Notification{Event: "notifyx"}) {
		t.Fatal("submit accepted after stop")
	}
}

func TestPoller_RegistrationThroughExecute(t *testing.T) {
	f := newFakeServer(t)
	s := openSession(t, f, testOptions())
	c := &collector{}
	s.SetNotificationHandler(c)

	resp, err := s.Execute(context.Background(), "servernotifyregister event=server")
	if err != nil || !resp.OK() {
		t.Fatalf("register: %v %+v", err, resp)
	}
	if got := s.Registrations(); len(got) != 1 || got[0] != EventServer {
		t.Fatalf("registrations = %v", got)
	}

	f.push("notifycliententerview cfid=0 ctid=1 clid=9 client_nickname=Bob")
	eventually(t, "idle delivery", func() bool { return c.has("notifycliententerview") })

	if _, err := s.Execute(context.Background(), "servernotifyunregister"); err != nil {
		t.Fatal(err)
	}
	if got := s.Registrations(); len(got) != 0 {
		t.Errorf("registrations after unregister = %v", got)
	}
}

func TestPoller_RefusedRegistrationThroughExecute(t *testing.T) {
	f := newFakeServer(t)
	f.on("servernotifyregister", func(string) []string {
		return []string{`error id=2568 msg=insufficient\sclient\spermissions failed_permid=42`}
	})
	s := openSession(t, f, testOptions())
	s.SetNotificationHandler(&collector{})

	resp, err := s.Execute(context.Background(), "servernotifyregister event=server")
	if err != nil || resp.OK() {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
	if got := s.Registrations(); len(got) != 0 {
		t.Errorf("refused registration recorded: %v", got)
	}
}
