package server

import (
	"net/http"
	"time"

	"github.com/ourstudio-se/go-contentauth"
)

type keyResponse struct {
	KeyID       string    `json:"key_id"`
	PublicKey   string    `json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	NotAfter    time.Time `json:"not_after"`
}

type signRequest struct {
	Message string `json:"message"`
}

type signResponse struct {
	Signature string `json:"signature"`
	KeyID     string `json:"key_id"`
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature" validate:"required,max=4096"`
	PublicKey string `json:"public_key,omitempty" validate:"omitempty,max=16384"`
}

type bindRequest struct {
	Content string `json:"content"`
}

type bindResponse struct {
	Signature   string `json:"signature"`
	Fingerprint string `json:"fingerprint"`
}

type verifyBoundRequest struct {
	Signature   string `json:"signature" validate:"required,max=4096"`
	Fingerprint string `json:"fingerprint" validate:"required,max=256"`
	Content     string `json:"content"`
	PublicKey   string `json:"public_key,omitempty" validate:"omitempty,max=16384"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentKey(w http.ResponseWriter, _ *http.Request) {
	key, err := s.auth.Current()
	if err != nil {
		s.logger.Error().Err(err).Msg("no current key pair")
		respondError(s.logger, w, http.StatusServiceUnavailable, "NO_KEY", "no signing key available")
		return
	}

	respondJSON(s.logger, w, http.StatusOK, keyResponse{
		KeyID:       key.ID,
		PublicKey:   key.PublicKey,
		Fingerprint: key.Fingerprint(),
		NotAfter:    key.NotAfter,
	})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	sig, keyID, err := s.auth.Sign([]byte(req.Message))
	if err != nil {
		s.logger.Error().Err(err).Msg("signing failed")
		respondError(s.logger, w, http.StatusInternalServerError, "SIGN_FAILED", "unable to sign message")
		return
	}

	respondJSON(s.logger, w, http.StatusOK, signResponse{Signature: sig, KeyID: keyID})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	var err error
	if req.PublicKey != "" {
		err = s.auth.CheckWith(req.PublicKey, []byte(req.Message), req.Signature)
	} else {
		err = s.auth.Check([]byte(req.Message), req.Signature)
	}

	s.respondVerification(w, err)
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	sig, fp, err := s.auth.Bind(req.Content)
	if err != nil {
		s.logger.Error().Err(err).Msg("binding failed")
		respondError(s.logger, w, http.StatusInternalServerError, "BIND_FAILED", "unable to bind content")
		return
	}

	respondJSON(s.logger, w, http.StatusOK, bindResponse{Signature: sig, Fingerprint: fp})
}

func (s *Server) handleVerifyBound(w http.ResponseWriter, r *http.Request) {
	var req verifyBoundRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	var err error
	if req.PublicKey != "" {
		err = s.auth.CheckBoundWith(req.PublicKey, req.Signature, req.Fingerprint, req.Content)
	} else {
		err = s.auth.CheckBound(req.Signature, req.Fingerprint, req.Content)
	}

	s.respondVerification(w, err)
}

// respondVerification answers false for any error. Errors outside
// the verification classes still answer false but are logged as
// errors so they are not mistaken for rejected signatures.
func (s *Server) respondVerification(w http.ResponseWriter, err error) {
	if err != nil && !contentauth.IsVerificationFailure(err) {
		s.logger.Error().Err(err).Msg("verification error")
	}

	respondJSON(s.logger, w, http.StatusOK, verifyResponse{Valid: err == nil})
}
