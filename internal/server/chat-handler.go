package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	"github.com/iamvkosarev/persona-chat/internal/parser"
	"github.com/iamvkosarev/persona-chat/internal/render"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
)

// maxBodyBytes bounds request bodies, attachments included.
const maxBodyBytes = 25 << 20

type workspaceResponse struct {
	ID       uuid.UUID       `json:"id"`
	Active   model.PersonaID `json:"active"`
	Personas []model.Persona `json:"personas"`
}

type sessionResponse struct {
	Persona    model.Persona          `json:"persona"`
	State      usecase.SessionState   `json:"state"`
	Messages   []model.Message        `json:"messages"`
	Design     string                 `json:"design,omitempty"`
	Whiteboard []model.WhiteboardStep `json:"whiteboard,omitempty"`
}

type attachmentRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	// Data is base64 in JSON.
	Data []byte `json:"data"`
}

type sendRequest struct {
	Text         string              `json:"text"`
	Attachments  []attachmentRequest `json:"attachments,omitempty"`
	WebSearch    bool                `json:"web_search,omitempty"`
	DeepThinking bool                `json:"deep_thinking,omitempty"`
}

func (r sendRequest) toUsecase() usecase.SendRequest {
	req := usecase.SendRequest{
		Text:         r.Text,
		WebSearch:    r.WebSearch,
		DeepThinking: r.DeepThinking,
	}
	for _, att := range r.Attachments {
		req.Attachments = append(req.Attachments, model.Attachment{
			Name:     att.Name,
			MimeType: att.MimeType,
			Size:     int64(len(att.Data)),
			Data:     att.Data,
		})
	}
	return req
}

type messageEvent struct {
	Message model.Message   `json:"message"`
	Widgets []render.Widget `json:"widgets"`
}

type forwardRequest struct {
	Target model.PersonaID `json:"target"`
}

type executePlanRequest struct {
	Steps []string `json:"steps,omitempty"`
}

type activeRequest struct {
	Persona model.PersonaID `json:"persona"`
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// workspace resolves the {ws} path value. Only routes that start a
// conversation pass create; the rest answer 404 for unknown ids.
func (s *Server) workspace(r *http.Request, create bool) (*usecase.Workspace, error) {
	id, err := uuid.Parse(r.PathValue("ws"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid workspace id", errBadRequest)
	}
	if create {
		return s.Workspaces.GetOrCreateWorkspace(id)
	}
	return s.Workspaces.GetWorkspace(id)
}

func (s *Server) session(r *http.Request, create bool) (*usecase.Workspace, *usecase.ChatSession, error) {
	ws, err := s.workspace(r, create)
	if err != nil {
		return nil, nil, err
	}
	session, err := ws.Session(model.PersonaID(r.PathValue("persona")))
	if err != nil {
		return nil, nil, err
	}
	return ws, session, nil
}

func messageIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid message index", errBadRequest)
	}
	return index, nil
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Personas.List())
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Workspaces.CreateWorkspace()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toWorkspaceResponse(ws))
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toWorkspaceResponse(ws))
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("ws"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid workspace id", errBadRequest))
		return
	}
	if err = s.Workspaces.DeleteWorkspace(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := s.workspace(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err = ws.SetActive(req.Persona); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toWorkspaceResponse(ws))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Persona:    session.Persona(),
		State:      session.State(),
		Messages:   session.Messages(),
		Design:     session.DesignPreview(),
		Whiteboard: session.Whiteboard(),
	})
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	session.NewChat()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTakeDraft(w http.ResponseWriter, r *http.Request) {
	ws, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	persona := session.Persona().ID
	writeJSON(w, http.StatusOK, usecase.Draft{Persona: persona, Text: ws.TakeDraft(persona)})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	_, session, err := s.session(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.stream(w, r, func(hooks usecase.Hooks) error {
		return session.Send(r.Context(), req.toUsecase(), hooks)
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	index, err := messageIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.stream(w, r, func(hooks usecase.Hooks) error {
		return session.Edit(r.Context(), index, req.toUsecase(), hooks)
	})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.stream(w, r, func(hooks usecase.Hooks) error {
		return session.Regenerate(r.Context(), req.toUsecase(), hooks)
	})
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req executePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.stream(w, r, func(hooks usecase.Hooks) error {
		return session.ExecutePlan(r.Context(), r.PathValue("message"), req.Steps, hooks)
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": session.Stop()})
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	index, err := messageIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := s.workspace(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	draft, err := ws.Forward(model.PersonaID(r.PathValue("persona")), index, req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	index, err := messageIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, session, err := s.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := session.Message(index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageEvent{Message: msg, Widgets: s.Renderer.Render(msg)})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text == "" {
		writeError(w, r, fmt.Errorf("%w: text is required", errBadRequest))
		return
	}
	audio, err := s.Speech.GenerateSpeech(r.Context(), req.Text, req.Voice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audio": audio})
}

// stream runs a session call and relays its hooks as server-sent events.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, run func(hooks usecase.Hooks) error) {
	sse := newSSEWriter(w)
	hooks := usecase.Hooks{
		OnMessage: func(m model.Message) {
			sse.send(eventMessage, messageEvent{Message: m, Widgets: s.Renderer.Render(m)})
		},
		OnScroll: func(cmd parser.Command) {
			sse.send(eventScroll, cmd)
		},
		OnPlay: func(cmd parser.Command) {
			sse.send(eventPlay, cmd)
		},
		OnDesign: func(html string) {
			sse.send(eventDesign, map[string]string{"html": html})
		},
		OnWhiteboard: func(steps []model.WhiteboardStep) {
			sse.send(eventWhiteboard, render.Steps(steps))
		},
	}
	err := run(hooks)
	if err != nil && !sse.isStarted() {
		writeError(w, r, err)
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("stream failed", "path", r.URL.Path, "error", err)
		sse.send(eventError, errorResponse{Error: clientMessage(r, err)})
	}
	sse.send(eventDone, struct{}{})
}

func (s *Server) toWorkspaceResponse(ws *usecase.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:       ws.ID,
		Active:   ws.Active(),
		Personas: s.Personas.List(),
	}
}
