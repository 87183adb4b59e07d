// Package webrtc pushes alerts to browsers over WebRTC data channels.
//
// A browser creates a data channel named "alerts", sends its offer to
// HandleOffer and then receives one JSON AlertEvent text message per alert.
package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// ChannelLabel is the data channel label browsers must open.
const ChannelLabel = "alerts"

// Message is what clients receive.
type Message struct {
	Type  string            `json:"type"` // "alert" or "hello"
	Alert *types.AlertEvent `json:"alert,omitempty"`
	Time  time.Time         `json:"time"`
}

// Client represents a connected WebRTC client
type Client struct {
	id        string
	peerConn  *webrtc.PeerConnection
	msgChan   chan []byte
	closeChan chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	channel     *webrtc.DataChannel
	msgsSent    uint64
	msgsDropped uint64
}

// Server manages WebRTC connections
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API

	target    string
	reference string
	now       func() time.Time
}

// NewServer creates a new WebRTC server
func NewServer(stunServers []string, maxClients int, target, reference string) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(time.Second * 2)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine))

	return &Server{
		clients: make(map[string]*Client),
		config: webrtc.Configuration{
			ICEServers: iceServers,
		},
		maxClients: maxClients,
		api:        api,
		target:     target,
		reference:  reference,
		now:        time.Now,
	}
}

// HandleOffer handles a WebRTC offer and returns an answer
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, fmt.Errorf("expected an SDP offer")
	}

	if s.GetClientCount() >= s.maxClients {
		return nil, fmt.Errorf("maximum clients reached (%d)", s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	client := &Client{
		id:        "client-" + uuid.NewString()[:8],
		peerConn:  peerConn,
		msgChan:   make(chan []byte, 16),
		closeChan: make(chan struct{}),
	}

	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			logger.Debug("WebRTC", "Client %s opened unexpected channel %q", client.id, dc.Label())
			return
		}
		dc.OnOpen(func() {
			client.mu.Lock()
			client.channel = dc
			client.mu.Unlock()
			logger.Info("WebRTC", "Client %s alert channel open", client.id)
			s.enqueue(client, Message{Type: "hello", Time: s.now()})
		})
	})

	// Remove client on disconnection, failure, or close
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("WebRTC", "Client %s connection state: %s", client.id, state.String())
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			logger.Info("WebRTC", "Client %s connection lost (Peer: %s), removing...", client.id, state.String())
			go s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)

	if err := peerConn.SetLocalDescription(answer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	// Non-trickle: the answer carries every candidate.
	<-gatherComplete
	logger.Debug("WebRTC", "ICE gathering complete for client %s", client.id)

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	go s.sendMessages(client)

	logger.Info("WebRTC", "Client %s connected", client.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("no local description available")
	}

	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		s.RemoveClient(client.id)
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	return answerJSON, nil
}

// Name implements sink.Sink.
func (s *Server) Name() string { return "webrtc" }

// Send implements sink.Sink. Clients without an open channel or with a full
// queue miss the alert.
func (s *Server) Send(_ context.Context, result *types.DetectionResult) error {
	ev := types.NewAlertEvent(result, s.target, s.reference, s.now())
	s.Broadcast(Message{Type: "alert", Alert: &ev, Time: ev.Time})
	return nil
}

// Broadcast queues msg for every connected client.
func (s *Server) Broadcast(msg Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		s.enqueue(client, msg)
	}
}

func (s *Server) enqueue(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("WebRTC", "Failed to encode %s message: %v", msg.Type, err)
		return
	}

	select {
	case <-client.closeChan:
		return
	default:
	}

	select {
	case client.msgChan <- data:
	default:
		client.mu.Lock()
		client.msgsDropped++
		client.mu.Unlock()
	}
}

// sendMessages sends queued messages to a specific client
func (s *Server) sendMessages(client *Client) {
	for {
		select {
		case <-client.closeChan:
			return

		case data := <-client.msgChan:
			client.mu.Lock()
			dc := client.channel
			client.mu.Unlock()

			if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
				client.mu.Lock()
				client.msgsDropped++
				client.mu.Unlock()
				continue
			}
			if err := dc.SendText(string(data)); err != nil {
				logger.Warn("WebRTC", "Error sending to client %s: %v", client.id, err)
				client.mu.Lock()
				client.msgsDropped++
				client.mu.Unlock()
				continue
			}
			client.mu.Lock()
			client.msgsSent++
			client.mu.Unlock()
		}
	}
}

// RemoveClient removes a client by ID
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.clientsMu.Unlock()

	if !exists {
		return
	}
	s.closeClient(client)
}

func (s *Server) closeClient(client *Client) {
	client.closeOnce.Do(func() {
		close(client.closeChan)
		if err := client.peerConn.Close(); err != nil {
			logger.Debug("WebRTC", "Client %s close: %v", client.id, err)
		}

		client.mu.Lock()
		sent, dropped := client.msgsSent, client.msgsDropped
		client.mu.Unlock()
		logger.Info("WebRTC", "Client %s disconnected (sent: %d, dropped: %d)", client.id, sent, dropped)
	})
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// GetClientStats returns stats for all clients
func (s *Server) GetClientStats() map[string]map[string]uint64 {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]map[string]uint64)
	for id, client := range s.clients {
		client.mu.Lock()
		stats[id] = map[string]uint64{
			"messages_sent":    client.msgsSent,
			"messages_dropped": client.msgsDropped,
		}
		client.mu.Unlock()
	}
	return stats
}

// Close closes all client connections
func (s *Server) Close() error {
	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for id, client := range s.clients {
		clients = append(clients, client)
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	for _, client := range clients {
		s.closeClient(client)
	}
	return nil
}
