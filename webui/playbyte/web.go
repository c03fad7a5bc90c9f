package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/sirupsen/logrus"

	"playbyte/bytestore"
	"playbyte/engine"
	"playbyte/interfaces"
	"playbyte/util"
	"playbyte/webui/dist"
)

type WebServer struct {
	log        *logrus.Entry
	listenAddr string
	e          *engine.Engine

	commandHandler interfaces.ViewCommandHandler

	mux *http.ServeMux

	socketsRw sync.RWMutex
	sockets   []*Socket

	// broadcast channel to all sockets:
	q chan ViewModelUpdate
}

type Socket struct {
	ws   *WebServer
	log  *logrus.Entry
	conn net.Conn

	// write channel:
	q    chan ViewModelUpdate
	done chan struct{}
}

type ViewModelUpdate struct {
	View      string      `json:"v"`
	ViewModel interface{} `json:"m"`
}

// NewWebServer serves the feed view and pushes view model updates to it over websockets.
func NewWebServer(log *logrus.Entry, listenAddr string, e *engine.Engine) *WebServer {
	s := &WebServer{
		log:        util.Component(log, "web"),
		listenAddr: listenAddr,
		e:          e,
		mux:        http.NewServeMux(),
		sockets:    make([]*Socket, 0, 2),
		q:          make(chan ViewModelUpdate, 64),
	}

	// handle websockets:
	s.mux.Handle("/ws/", http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, rw)
		if err != nil {
			s.log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		socket := NewSocket(s, conn)
		s.appendSocket(socket)

		// start by sending all view models to this new socket:
		if s.commandHandler != nil {
			s.commandHandler.NotifyViewTo(socket)
		}
	}))

	s.mux.Handle("/thumbnails/", MaxAge(http.HandlerFunc(s.serveThumbnail)))
	s.mux.HandleFunc("/frame.png", s.serveFrame)
	s.mux.Handle("/", MaxAge(http.FileServer(http.FS(dist.Content))))

	go s.handleBroadcast()

	return s
}

func (s *WebServer) Handler() http.Handler { return s.mux }

func (s *WebServer) appendSocket(socket *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()
	s.sockets = append(s.sockets, socket)
}

func (s *WebServer) removeSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()

	for i, sk := range s.sockets {
		if sk == k {
			s.sockets = append(s.sockets[:i], s.sockets[i+1:]...)
			break
		}
	}
}

// Serve listens until ctx is done.
func (s *WebServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", s.listenAddr).Info("feed view listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *WebServer) NotifyView(view string, viewModel interface{}) {
	// send to the broadcast channel so that all connected websockets get the update:
	s.q <- ViewModelUpdate{
		View:      view,
		ViewModel: viewModel,
	}
}

func (s *WebServer) ProvideViewCommandHandler(commandHandler interfaces.ViewCommandHandler) {
	s.commandHandler = commandHandler
}

func (s *WebServer) handleBroadcast() {
	for u := range s.q {
		s.socketsRw.RLock()
		sockets := append([]*Socket(nil), s.sockets...)
		s.socketsRw.RUnlock()

		for _, k := range sockets {
			k.NotifyView(u.View, u.ViewModel)
		}
	}
}

func (s *WebServer) serveThumbnail(rw http.ResponseWriter, req *http.Request) {
	id := strings.TrimSuffix(path.Base(req.URL.Path), ".png")
	b, err := s.e.Store.LoadThumbnail(id)
	if err != nil {
		var nf *bytestore.ByteNotFoundError
		if errors.As(err, &nf) {
			http.NotFound(rw, req)
			return
		}
		s.log.WithError(err).WithField("byte", id).Warn("thumbnail unreadable")
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	_, _ = rw.Write(b)
}

// serveFrame renders the feed slot's last frame.
func (s *WebServer) serveFrame(rw http.ResponseWriter, req *http.Request) {
	sid, ok := s.e.Bridge.SlotSession(engine.FeedSlot)
	if !ok {
		http.NotFound(rw, req)
		return
	}
	frame, err := s.e.Bridge.LastFrame(sid)
	if err != nil {
		http.NotFound(rw, req)
		return
	}
	b, err := engine.RenderThumbnail(frame)
	if errors.Is(err, engine.ErrNoFrame) {
		http.NotFound(rw, req)
		return
	} else if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	rw.Header().Set("Cache-Control", "no-store")
	_, _ = rw.Write(b)
}

func NewSocket(s *WebServer, conn net.Conn) *Socket {
	k := &Socket{
		ws:   s,
		log:  s.log.WithField("remote", conn.RemoteAddr().String()),
		conn: conn,
		q:    make(chan ViewModelUpdate, 64),
		done: make(chan struct{}),
	}

	go k.readHandler()
	go k.writeHandler()

	return k
}

// NotifyView queues an update; a socket too slow to keep up loses it.
func (k *Socket) NotifyView(view string, viewModel interface{}) {
	select {
	case k.q <- ViewModelUpdate{View: view, ViewModel: viewModel}:
	case <-k.done:
	default:
		k.log.WithField("view", view).Warn("socket write queue full; dropping update")
	}
}

type CommandRequest struct {
	View    string          `json:"v"`
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

func (k *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer func() {
		close(k.done)
		_ = k.conn.Close()
		k.ws.removeSocket(k)
	}()

	r := wsutil.NewReader(k.conn, ws.StateServerSide)
	for {
		hdr, err := r.NextFrame()
		if err != nil {
			k.log.WithError(err).Debug("websocket closed")
			return
		}
		if hdr.OpCode == ws.OpClose {
			return
		}
		if hdr.OpCode != ws.OpText {
			k.discard(r)
			continue
		}

		// one JSON command request per frame:
		var creq CommandRequest
		err = json.NewDecoder(r).Decode(&creq)
		k.discard(r)
		if err != nil {
			k.log.WithError(err).Warn("could not read json command request")
			continue
		}
		if err := k.execute(creq); err != nil {
			k.log.WithError(err).WithFields(logrus.Fields{"view": creq.View, "command": creq.Command}).Warn("command failed")
		}
	}
}

func (k *Socket) discard(r *wsutil.Reader) {
	if err := r.Discard(); err != nil {
		k.log.WithError(err).Debug("discard")
	}
}

func (k *Socket) execute(creq CommandRequest) error {
	if k.ws.commandHandler == nil {
		return fmt.Errorf("no view command handler provided")
	}

	ce, err := k.ws.commandHandler.CommandFor(creq.View, creq.Command)
	if err != nil {
		return err
	}

	// instantiate a specific args type for the command:
	args := ce.CreateArgs()
	if args != nil && len(creq.Args) > 0 {
		if err = json.Unmarshal(creq.Args, args); err != nil {
			return fmt.Errorf("error deserializing json command args: %w", err)
		}
	}

	return ce.Execute(args)
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(k.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	for {
		select {
		case <-k.done:
			return
		case u := <-k.q:
			if err := encoder.Encode(&u); err != nil {
				k.log.WithError(err).Warn("could not encode view model")
				continue
			}
			if err := w.Flush(); err != nil {
				k.log.WithError(err).Debug("websocket write failed")
				continue
			}
		}
	}
}
