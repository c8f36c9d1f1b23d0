package server

import (
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse/kv"
	"github.com/teranos/linkpulse/pulse/schedule"
)

// Push topics, one per durable key family.
const (
	TopicSchedules        = "schedules"
	TopicSchedulerEnabled = "schedulerEnabled"
	TopicJobState         = "jobState"
	TopicProgress         = "progress"
	TopicQuota            = "quota"
	TopicHistory          = "history"
	TopicBacklog          = "backlog"
)

// pushRoutes maps key prefixes to topics. withValue=false pushes only the key:
// history values are large and clients refetch them with getHistory.
var pushRoutes = []struct {
	prefix    string
	topic     string
	withValue bool
}{
	{kv.PrefixSchedules, TopicSchedules, true},
	{kv.PrefixSchedulerEnabled, TopicSchedulerEnabled, true},
	{kv.PrefixJobState, TopicJobState, true},
	{kv.PrefixProgress, TopicProgress, true},
	{kv.PrefixQuotaDaily, TopicQuota, true},
	{kv.PrefixQuotaMonthly, TopicQuota, true},
	{kv.PrefixHistory, TopicHistory, false},
	{kv.PrefixBacklog, TopicBacklog, true},
}

func (s *Server) registerPushHandlers() error {
	for _, route := range pushRoutes {
		route := route
		err := s.dispatcher.Handle(route.prefix+"*", func(c kv.Change) {
			msg := StorageChangeMessage{
				Type:    "storage_change",
				Topic:   route.topic,
				Key:     c.Key,
				Deleted: c.Deleted,
				At:      c.At,
			}
			if kind, ok := kv.KindOf(c.Key); ok {
				msg.Kind = kind
			}
			if route.withValue {
				msg.Value = c.Value
			}
			s.broadcastMessage(msg)
		})
		if err != nil {
			return err
		}
	}
	// scheduleFired bookkeeping and anything unknown stay server-side
	s.dispatcher.HandleUnmatched(func(kv.Change) {})
	return nil
}

// startPushLoops forwards storage changes and countdowns to every client
// until the server context is done.
func (s *Server) startPushLoops() {
	changes := s.deps.Store.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.deps.Store.Unsubscribe(changes)
		s.dispatcher.Run(s.ctx, changes)
	}()

	if s.deps.Ticker == nil {
		return
	}
	countdowns := s.deps.Ticker.SubscribeCountdown()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.deps.Ticker.UnsubscribeCountdown(countdowns)
		for {
			select {
			case <-s.ctx.Done():
				return
			case cds := <-countdowns:
				s.broadcastCountdowns(cds)
			}
		}
	}()
}

func (s *Server) broadcastCountdowns(cds []schedule.Countdown) {
	if cds == nil {
		cds = []schedule.Countdown{}
	}
	s.broadcastMessage(CountdownMessage{Type: "countdown", Countdowns: cds})
}

// broadcastMessage queues msg on every client without blocking.
// Slow clients miss the message; the drop is counted.
func (s *Server) broadcastMessage(msg interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if !client.enqueue(msg) {
			s.broadcastDrops.Add(1)
			s.logger.Debugw("Broadcast dropped for slow client", logger.FieldClientID, client.id)
		}
	}
}

// BroadcastDrops returns how many pushes were dropped on full client queues
func (s *Server) BroadcastDrops() int64 {
	return s.broadcastDrops.Load()
}
