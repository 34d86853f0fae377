package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"bourse/internal/common"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("net: improper type conversion")
	ErrClientDoesNotExist = errors.New("net: client does not exist")
)

// Engine is the subset of StepEnvNumpy the server drives. It is an
// interface, not a concrete type, so the server can be exercised against
// a fake in tests without a real book behind it.
type Engine interface {
	PlaceOrder(side common.Side, vol uint32, traderID uint64, price *uint32) uint64
	CancelOrder(id uint64)
	ModifyOrder(id uint64, newPrice, newVol *uint32)
	SubmitBatch(kind []uint8, side []bool, vol, traderID, price []uint32, orderID []uint64) ([]uint64, error)
	Step()
	LogBook()
}

type clientSession struct {
	conn net.Conn
}

type clientMessage struct {
	clientAddress string
	message       Message
}

// Server is a TCP gateway that parses wire messages, stages them against
// an Engine, and writes back execution/error reports.
type Server struct {
	address string
	port    int
	engine  Engine

	pool   workerPool
	cancel context.CancelFunc

	sessionsLock sync.Mutex
	sessions     map[string]clientSession

	messages chan clientMessage
}

// New constructs a Server bound to the given Engine.
func New(address string, port int, engine Engine) *Server {
	return &Server{
		address:  address,
		port:     port,
		engine:   engine,
		pool:     newWorkerPool(defaultNWorkers),
		sessions: make(map[string]clientSession),
		messages: make(chan clientMessage, 1),
	}
}

// Shutdown cancels the server's run context.
func (s *Server) Shutdown() {
	log.Info().Msg("net: server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run blocks, accepting connections and dispatching messages, until ctx
// is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("net: unable to start listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("net: unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("net: server running")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("net: error accepting client")
				continue
			}
			log.Info().Str("address", conn.RemoteAddr().String()).Msg("net: client connected")
			s.addSession(conn)
			s.pool.addTask(conn)
		}
	}
}

func (s *Server) reportError(clientAddress string, orderErr error) {
	s.sessionsLock.Lock()
	client, ok := s.sessions[clientAddress]
	s.sessionsLock.Unlock()
	if !ok {
		return
	}
	report := Report{MessageType: ErrorReport, Err: orderErr.Error(), ErrStrLen: uint32(len(orderErr.Error()))}
	if _, err := client.conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("net: unable to send error report")
		s.deleteSession(clientAddress)
	}
}

func (s *Server) reportExecution(clientAddress string, orderID uint64) {
	s.sessionsLock.Lock()
	client, ok := s.sessions[clientAddress]
	s.sessionsLock.Unlock()
	if !ok {
		return
	}
	report := Report{MessageType: ExecutionReport, OrderID: orderID}
	if _, err := client.conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("net: unable to send execution report")
		s.deleteSession(clientAddress)
	}
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.messages:
			if err := s.handleMessage(msg); err != nil {
				log.Error().Err(err).Str("clientAddress", msg.clientAddress).Msg("net: error handling message")
				s.reportError(msg.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(msg clientMessage) error {
	switch msg.message.GetType() {
	case NewOrder:
		m, ok := msg.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		var price *uint32
		if !m.IsMarket {
			price = &m.Price
		}
		id := s.engine.PlaceOrder(m.Side, m.Vol, m.TraderID, price)
		s.reportExecution(msg.clientAddress, id)
	case CancelOrder:
		m, ok := msg.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		s.engine.CancelOrder(m.OrderID)
	case ModifyOrder:
		m, ok := msg.message.(ModifyOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		var newPrice, newVol *uint32
		if m.HasPrice {
			newPrice = &m.Price
		}
		if m.HasVol {
			newVol = &m.Vol
		}
		s.engine.ModifyOrder(m.OrderID, newPrice, newVol)
	case SubmitBatch:
		m, ok := msg.message.(SubmitBatchMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		if _, err := s.engine.SubmitBatch(m.Kind, m.Side, m.Vol, m.TraderID, m.Price, m.OrderID); err != nil {
			return err
		}
	case Step:
		s.engine.Step()
	case LogBook:
		s.engine.LogBook()
	case Heartbeat:
		// no-op, keeps the connection alive
	default:
		log.Error().Int("messageType", int(msg.message.GetType())).Msg("net: invalid message type")
		return ErrInvalidMessageType
	}
	return nil
}

// handleConnection reads one frame off conn, parses it, and forwards it
// to sessionHandler, then re-queues the connection for its next frame.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: failed setting deadline")
		s.closeSession(conn)
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Debug().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: connection read failed")
			s.closeSession(conn)
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: error parsing message")
			s.messages <- clientMessage{clientAddress: conn.RemoteAddr().String(), message: BaseMessage{TypeOf: Heartbeat}}
			s.pool.addTask(conn)
			return nil
		}

		s.messages <- clientMessage{clientAddress: conn.RemoteAddr().String(), message: message}
		s.pool.addTask(conn)
	}
	return nil
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	s.sessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) deleteSession(address string) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	delete(s.sessions, address)
}

func (s *Server) closeSession(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Str("address", addr).Msg("net: error closing connection")
	}
	s.deleteSession(addr)
}
