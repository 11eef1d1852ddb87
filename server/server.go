package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"splitsteal/arena"
	"splitsteal/ledger"
	"splitsteal/server/serverdb"
	"splitsteal/wire"
)

// Config carries everything a Server needs at construction time.
type Config struct {
	Log     slog.Logger
	Archive serverdb.ServerDB
	Ledger  ledger.Recorder

	ListenAddr string

	NegotiationWindow time.Duration
	ChoiceWindow      time.Duration
	ChallengeTTL      time.Duration

	CohortCapacity     int
	CohortMinimum      int
	RegistrationWindow time.Duration
	TournamentRounds   int
}

// Server owns the realtime channel, the single-threaded core and every
// domain component. All game state is touched only by closures running
// on the hub; the HTTP handlers and socket readers just post work there.
type Server struct {
	log   slog.Logger
	hub   *Hub
	conns *Broadcaster
	auth  *AuthManager

	queue       *arena.Queue
	matches     *arena.MatchManager
	bets        *arena.BetManager
	tournaments *arena.TournamentManager
	tqueue      *arena.TournamentQueue

	archive serverdb.ServerDB
	settle  *ledger.Worker

	rounds     int
	listenAddr string
	upgrader   websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	hub := NewHub(log)
	conns := NewBroadcaster(log)

	s := &Server{
		log:        log,
		hub:        hub,
		conns:      conns,
		auth:       NewAuthManager(log, cfg.ChallengeTTL),
		queue:      arena.NewQueue(),
		bets:       arena.NewBetManager(log),
		archive:    cfg.Archive,
		rounds:     cfg.TournamentRounds,
		listenAddr: cfg.ListenAddr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.matches = arena.NewMatchManager(arena.MatchManagerConfig{
		Log:               log,
		Emitter:           conns,
		Scheduler:         hub,
		NegotiationWindow: cfg.NegotiationWindow,
		ChoiceWindow:      cfg.ChoiceWindow,
	})
	conns.SetMatchResolver(func(matchID string) (string, string, bool) {
		m := s.matches.Match(matchID)
		if m == nil {
			return "", "", false
		}
		return m.AgentA, m.AgentB, true
	})
	s.matches.OnCreated(func(m *arena.Match) { s.bets.Open(m.ID) })
	s.matches.OnSettling(func(m *arena.Match) { s.bets.Lock(m.ID) })
	s.matches.OnComplete(s.handleMatchComplete)

	s.tournaments = arena.NewTournamentManager(log, conns, s.matches)
	s.tqueue = arena.NewTournamentQueue(arena.TournamentQueueConfig{
		Log:       log,
		Emitter:   conns,
		Scheduler: hub,
		Capacity:  cfg.CohortCapacity,
		Minimum:   cfg.CohortMinimum,
		Window:    cfg.RegistrationWindow,
		OnCohort: func(players []string) {
			s.tournaments.Start(players, s.rounds)
		},
	})

	s.settle = ledger.NewWorker(cfg.Ledger, log, s.stampTxRef)
	return s
}

// Run serves until ctx is cancelled. The hub, the HTTP listener and the
// settlement worker live and die together.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.registerAPI(mux)

	httpSrv := &http.Server{Addr: s.listenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error { return s.settle.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})
	g.Go(func() error {
		s.log.Infof("listening on %s", s.listenAddr)
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-t.C:
				s.auth.SweepExpired()
			}
		}
	})
	return g.Wait()
}

// handleWS upgrades a connection and runs its read loop. The role rides
// on the query string; agents are challenged immediately so the first
// frame they see is AUTH_CHALLENGE.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	role := wire.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = wire.RoleSpectator
	}
	if !role.Valid() {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("upgrade failed: %v", err)
		return
	}

	c := newConn(sock, role, s.log)
	s.conns.AddConnection(c)

	if role == wire.RoleAgent {
		s.sendChallenge(c)
	}

	go s.readPump(c)
}

// sendChallenge issues a fresh auth challenge and remembers its id on the
// connection.
func (s *Server) sendChallenge(c *Conn) {
	ch, err := s.auth.GenerateChallenge(c.ID)
	if err != nil {
		s.log.Errorf("conn %s: generate challenge: %v", c.ID, err)
		s.conns.Send(c, wire.EvtError, wire.ErrorPayload{Message: "challenge unavailable"})
		return
	}
	c.setChallengeID(ch.ChallengeID)
	s.conns.Send(c, wire.EvtAuthChallenge, ch)
}

// readPump decodes inbound frames and posts them to the core one at a
// time, preserving per-connection order.
func (s *Server) readPump(c *Conn) {
	defer s.hub.Post(func() { s.handleDisconnect(c) })

	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env wire.Envelope
		if err := c.sock.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugf("conn %s: read failed: %v", c.ID, err)
			}
			return
		}
		s.hub.Post(func() { s.dispatch(c, env) })
	}
}

// handleDisconnect runs on the core when a connection's reader exits. An
// agent mid-match is not forfeited here; the phase deadlines take care
// of an absent agent, and the address may reconnect before they expire.
func (s *Server) handleDisconnect(c *Conn) {
	c.Close()
	s.conns.RemoveConnection(c)

	addr := c.Address()
	if addr == "" {
		return
	}
	if s.queue.Remove(addr) {
		s.broadcastQueueUpdate()
	}
	s.tqueue.Remove(addr)
	s.log.Debugf("agent %s disconnected", addr)
}

// handleMatchComplete runs on the core after the engine seals a result:
// settle the pool, archive the record, hand the result to the ledger
// worker, and route tournament results back to their tournament.
func (s *Server) handleMatchComplete(m *arena.Match) {
	res := m.Result

	if _, err := s.bets.Settle(m.ID, res.Outcome); err != nil && !errors.Is(err, arena.ErrPoolNotFound) {
		s.log.Errorf("match %s: settle pool: %v", m.ID, err)
	}
	s.bets.Remove(m.ID)

	rec := &serverdb.MatchRecord{
		MatchID:      m.ID,
		TournamentID: m.TournamentID,
		AgentA:       m.AgentA,
		AgentB:       m.AgentB,
		ChoiceA:      uint8(res.ChoiceA),
		ChoiceB:      uint8(res.ChoiceB),
		PointsA:      res.PointsA,
		PointsB:      res.PointsB,
		Outcome:      res.Outcome.String(),
		Forfeited:    res.Forfeited,
		EndedAt:      res.EndedAt,
	}
	if err := s.archive.StoreMatch(context.Background(), rec); err != nil {
		s.log.Errorf("match %s: archive: %v", m.ID, err)
	}

	s.settle.Enqueue(ledger.Job{
		MatchID: m.ID,
		Outcome: res.Outcome.String(),
		AgentA:  m.AgentA,
		AgentB:  m.AgentB,
	})

	if m.TournamentID != "" {
		s.tournaments.HandleMatchComplete(m)
		return
	}

	// Quick match: agents that are still connected go back to the end of
	// the queue for their next opponent.
	for _, addr := range []string{m.AgentA, m.AgentB} {
		if s.conns.ConnByAddress(addr) != nil {
			s.enqueueAgent(addr)
		}
	}
}

// stampTxRef is the ledger worker's completion callback; it records the
// transaction reference on the archived match.
func (s *Server) stampTxRef(matchID, txRef string) {
	if err := s.archive.UpdateMatchTxRef(context.Background(), matchID, txRef); err != nil {
		s.log.Errorf("match %s: stamp tx ref: %v", matchID, err)
	}
}

// enqueueAgent adds an authenticated agent to the quick-match queue and
// pairs waiting agents off. Runs on the core.
func (s *Server) enqueueAgent(addr string) {
	c := s.conns.ConnByAddress(addr)
	connID := ""
	if c != nil {
		connID = c.ID
	}
	if !s.queue.Add(addr, connID) {
		return
	}
	s.conns.EmitTo(addr, wire.EvtQueueJoined, wire.QueueJoinedPayload{
		Address:  addr,
		Position: s.queue.Len(),
	})
	s.broadcastQueueUpdate()
	s.pairWaiting()
}

// pairWaiting drains the queue two at a time into new matches.
func (s *Server) pairWaiting() {
	for {
		a, b, ok := s.queue.TryPair()
		if !ok {
			return
		}
		if _, err := s.matches.CreateMatch(a.Address, b.Address, ""); err != nil {
			// One of them raced into a tournament match; requeue the other.
			s.log.Warnf("pairing %s vs %s failed: %v", a.Address, b.Address, err)
			for _, e := range []arena.QueueEntry{a, b} {
				if s.matches.ActiveMatch(e.Address) == nil {
					s.queue.Add(e.Address, e.ConnID)
				}
			}
			continue
		}
		s.broadcastQueueUpdate()
	}
}

func (s *Server) broadcastQueueUpdate() {
	s.conns.EmitAll(wire.EvtQueueUpdate, wire.QueueUpdatePayload{
		Size:      s.queue.Len(),
		Addresses: s.queue.Addresses(),
	})
}
