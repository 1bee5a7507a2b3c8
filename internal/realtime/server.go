package realtime

import (
	"bufio"
	"encoding/json"
	"log"
	"net"
)

// Server accepts raw TCP clients for the line-oriented event feed.
type Server struct {
	addr string
	hub  *Hub
	ln   net.Listener
}

type subscribeMsg struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{addr: addr, hub: hub}
}

func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	log.Printf("TCP event feed listening on %s", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.hub.Add(conn, nil)
		s.hub.Welcome(conn)

		go s.readLoop(conn)
	}
}

// readLoop watches for subscribe messages until the client disconnects.
// Anything that is not a subscribe message is ignored; the feed stays
// write-mostly.
func (s *Server) readLoop(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var msg subscribeMsg
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Type == "subscribe" {
			s.hub.Subscribe(conn, msg.Events)
			log.Printf("TCP client %s subscribed to %v", conn.RemoteAddr(), msg.Events)
		}
	}
	s.hub.Remove(conn)
}

func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
