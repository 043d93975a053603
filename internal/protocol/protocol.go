// Package protocol defines the wire envelope exchanged with quiz clients.
//
// Every message in either direction is a single JSON object of the form
// {"header": <string>, "data": <object>}. The header names the payload
// type; the data shapes are the typed structs below.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Client -> server headers.
const (
	HeaderCommand = "command"
	HeaderAnswer  = "answer"
)

// Server -> client headers.
const (
	HeaderState      = "state"
	HeaderGameCode   = "game_code"
	HeaderAlert      = "alert"
	HeaderQuestion   = "question"
	HeaderClientInfo = "client_info"
	HeaderGameList   = "game_list"
	HeaderQuizStats  = "quiz_stats"
)

var ErrMalformed = errors.New("malformed envelope")

// Envelope is the single framing unit of the protocol.
type Envelope struct {
	Header string          `json:"header"`
	Data   json.RawMessage `json:"data"`
}

// Decode parses a raw frame into an envelope. Frames missing either the
// header or the data object are rejected as malformed.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Header == "" || len(env.Data) == 0 {
		return Envelope{}, ErrMalformed
	}
	return env, nil
}

// Decode unmarshals the envelope's data object into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Encode marshals a payload under the given header into a wire frame.
func Encode(header string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Header: header, Data: raw})
}

// State is a client's participation state as sent on the wire.
type State string

const (
	StateMenu   State = "inMenu"
	StateLobby  State = "inLobby"
	StateInGame State = "inGame"
)

// Valid reports whether s is one of the three enumerated states.
func (s State) Valid() bool {
	switch s {
	case StateMenu, StateLobby, StateInGame:
		return true
	}
	return false
}

type CommandData struct {
	Command string `json:"command"`
}

type AnswerData struct {
	Answer string `json:"answer"`
}

type StateData struct {
	State State `json:"state"`
}

type GameCodeData struct {
	GameCode string `json:"game_code"`
}

type AlertData struct {
	Message string `json:"message"`
}

type QuestionData struct {
	Question string `json:"question"`
}

type ClientInfoData struct {
	UID int `json:"uid"`
}

type GameSummary struct {
	Code        string `json:"code"`
	PlayerCount int    `json:"player_count"`
}

type GameListData struct {
	GameList []GameSummary `json:"game_list"`
}

// ScoreRow is one leaderboard entry keyed by session uid.
type ScoreRow struct {
	UID      int
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// QuizStatsData is the final leaderboard. It marshals as an object keyed
// by uid whose entries appear in slice order, so the descending score
// order survives serialization.
type QuizStatsData []ScoreRow

func (q QuizStatsData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, row := range q {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(row.UID)))
		buf.WriteByte(':')
		entry, err := json.Marshal(struct {
			Username string `json:"username"`
			Score    int    `json:"score"`
		}{row.Username, row.Score})
		if err != nil {
			return nil, err
		}
		buf.Write(entry)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
