package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	. "matchbook/internal/common"
	"matchbook/internal/engine"
	"matchbook/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	MAX_RECV_SIZE      = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// orderOwner records enough of a submitted order's origin to route
// execution reports back to whichever session placed it once it trades, and
// to find an owner's sessions for ReportError. Rejected orders produce no
// report.
type orderOwner struct {
	owner     string
	address   string
	assetType AssetType
	ticker    string
	side      Side
}

// Server is the wire-protocol front end for an engine.Engine. It decodes
// NewOrder/CancelOrder/LogBook requests off TCP connections, submits them to
// the engine, and reports trades and errors back to the sessions that placed
// the underlying orders.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	nextOrderID atomic.Uint64

	clientSessionsLock sync.Mutex
	clientSessions     map[string]ClientSession
	orderOwners        map[OrderId]orderOwner

	clientMessages chan ClientMessage
}

// New constructs a wire server fronting eng, listening on address:port.
func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		orderOwners:    make(map[OrderId]orderOwner),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool.
	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			// Add the client to client sessions we are tracking.
			// We expect to potentially maintain a long TCP session.
			s.addClientSession(conn)

			// Pass over the connection to be read from.
			s.pool.AddTask(conn)
		}
	}
}

// ReportTrade implements engine.Reporter: it looks up both legs' owning
// sessions and forwards each an execution report.
func (s *Server) ReportTrade(trade Trade, matchErr error) error {
	bidOwner, bidOk := s.lookupOwner(trade.Bid.OrderID)
	askOwner, askOk := s.lookupOwner(trade.Ask.OrderID)
	if !bidOk || !askOk {
		return ErrClientDoesNotExist
	}

	exec := Execution{
		Party:        ownedOrder(trade.Bid.OrderID, bidOwner, trade.Bid.Quantity, trade.Bid.Price),
		CounterParty: ownedOrder(trade.Ask.OrderID, askOwner, trade.Ask.Quantity, trade.Ask.Price),
		Timestamp:    time.Now(),
		MatchQty:     trade.Bid.Quantity,
		Price:        trade.Ask.Price,
	}

	bidReport, askReport, err := generateWireTradeReports(exec, matchErr)
	if err != nil {
		return err
	}

	if err := s.deliver(bidOwner.address, bidReport); err != nil {
		log.Error().Err(err).Str("owner", bidOwner.owner).Msg("failed to deliver execution report")
	}
	if err := s.deliver(askOwner.address, askReport); err != nil {
		log.Error().Err(err).Str("owner", askOwner.owner).Msg("failed to deliver execution report")
	}
	return nil
}

// ReportError implements engine.Reporter by pushing an error report to
// every session registered as owner.
func (s *Server) ReportError(owner string, reportErr error) error {
	buf, err := generateWireErrorReports(reportErr)
	if err != nil {
		return err
	}

	s.clientSessionsLock.Lock()
	addresses := make([]string, 0)
	for _, oo := range s.orderOwners {
		if oo.owner == owner {
			addresses = append(addresses, oo.address)
		}
	}
	s.clientSessionsLock.Unlock()

	for _, address := range addresses {
		if err := s.deliver(address, buf); err != nil {
			log.Error().Err(err).Str("owner", owner).Msg("failed to deliver error report")
		}
	}
	return nil
}

func ownedOrder(id OrderId, o orderOwner, qty Quantity, price Price) *Order {
	return &Order{
		OrderID:   id,
		AssetType: o.assetType,
		Ticker:    o.ticker,
		Side:      o.side,
		Quantity:  qty,
		Price:     price,
		Owner:     o.owner,
	}
}

func (s *Server) lookupOwner(id OrderId) (orderOwner, bool) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	o, ok := s.orderOwners[id]
	return o, ok
}

func (s *Server) deliver(address string, payload []byte) error {
	s.clientSessionsLock.Lock()
	session, ok := s.clientSessions[address]
	s.clientSessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}
	_, err := session.conn.Write(payload)
	return err
}

// sessionHandler reads off incoming messages from clients and dispatches
// them against the engine. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case cm := <-s.clientMessages:
			s.dispatch(cm)
		}
	}
}

func (s *Server) dispatch(cm ClientMessage) {
	switch msg := cm.message.(type) {
	case NewOrderMessage:
		s.handleNewOrder(cm.clientAddress, msg)
	case CancelOrderMessage:
		s.handleCancelOrder(msg)
	case BaseMessage:
		if msg.GetType() == LogBook {
			s.handleLogBook(cm.clientAddress)
		}
	}
}

func (s *Server) handleNewOrder(address string, msg NewOrderMessage) {
	book, ok := s.engine.Book(msg.AssetType)
	if !ok {
		log.Error().Str("asset", msg.AssetType.String()).Msg("unknown asset type")
		return
	}

	req := msg.Order()
	req.Timestamp = time.Now()
	id := OrderId(s.nextOrderID.Add(1))

	s.clientSessionsLock.Lock()
	s.orderOwners[id] = orderOwner{
		owner:     req.Owner,
		address:   address,
		assetType: req.AssetType,
		ticker:    req.Ticker,
		side:      req.Side,
	}
	s.clientSessionsLock.Unlock()

	if _, err := book.AddOrder(id, req.OrderType, req.Side, req.Price, req.Quantity); err != nil {
		log.Error().Err(err).Uint64("order_id", uint64(id)).Msg("failed to admit order")
	}
}

func (s *Server) handleCancelOrder(msg CancelOrderMessage) {
	book, ok := s.engine.Book(msg.AssetType)
	if !ok {
		return
	}
	book.CancelOrder(msg.OrderID)

	s.clientSessionsLock.Lock()
	delete(s.orderOwners, msg.OrderID)
	s.clientSessionsLock.Unlock()
}

func (s *Server) handleLogBook(address string) {
	book, ok := s.engine.Book(Equities)
	if !ok {
		return
	}
	log.Info().
		Interface("snapshot", book.GetLevelInfos()).
		Str("address", address).
		Msg("book snapshot requested")
}

// handleConnection is a short-lived worker method which reads the next message off the
// connection, parses and passes it forward to sessionHandler to handle it. If the connection
// dies, the client session is cleaned up. This method does not lock any client session
// directly and gives up early if the connection is terminated. Therefore this method is
// thread safe on map accesses.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("error closing connection")
		}
	}()

	// Set max read timeout.
	err := conn.SetDeadline(time.Now().Add(defaultConnTimeout))
	if err != nil {
		log.Error().
			Str("address", conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, MAX_RECV_SIZE)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error reading from connection")

			// If a read from a client fails, it is likely that the client
			// has exited. Clean up the client session.
			s.deleteClientSession(conn.RemoteAddr().String())
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error parsing message")
			s.deleteClientSession(conn.RemoteAddr().String())
			return nil
		}

		// Pass over to the message handling buffer and exit this worker.
		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: conn.RemoteAddr().String(),
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add.
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove.
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}
