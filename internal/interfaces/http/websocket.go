package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/policy"
)

const (
	wsReadLimit  = 1 << 20
	wsPongWait   = 60 * time.Second
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// MonitorStream answers every inbound {trade, snapshot} message with a health
// check, or with an ErrorResponse when the message cannot be evaluated
func (s *Server) MonitorStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	requestID := RequestID(r.Context())
	log.Info().Str("request_id", requestID).Msg("Monitor stream opened")

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("request_id", requestID).Msg("Monitor stream closed unexpectedly")
			}
			return
		}

		reply := s.monitorReply(requestID, data)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("Monitor stream write failed")
			return
		}
	}
}

func (s *Server) monitorReply(requestID string, data []byte) interface{} {
	var req MonitorRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ErrorResponse{
			Error:     http.StatusText(http.StatusBadRequest),
			Code:      CodeBadJSON,
			Message:   fmt.Sprintf("Message is not valid JSON: %v", err),
			RequestID: requestID,
			Timestamp: s.now().UTC(),
		}
	}

	health, err := s.checkTrade(req)
	if err == nil {
		return health
	}

	resp := ErrorResponse{
		Error:     http.StatusText(http.StatusInternalServerError),
		Code:      CodeInternal,
		Message:   err.Error(),
		RequestID: requestID,
		Timestamp: s.now().UTC(),
	}
	var validationErr policy.ValidationError
	if errors.As(err, &validationErr) {
		resp.Error = http.StatusText(http.StatusUnprocessableEntity)
		resp.Code = CodeValidation
		resp.Component = validationErr.Component
		resp.Fields = validationErr.Fields
	}
	return resp
}

// pingLoop keeps idle streams alive; WriteControl is safe alongside WriteJSON
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
