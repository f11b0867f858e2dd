package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vinayprograms/ans/attestation"
	"github.com/vinayprograms/ans/did"
	"github.com/vinayprograms/ans/discovery"
	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/registration"
)

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// register accepts a signed registration payload.
func (s *Server) register(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}

	receipt, err := s.svc.Registration.Register(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":       "success",
		"registration": receipt,
	})
}

// lookupQuery serves GET /lookup.
func (s *Server) lookupQuery(c *gin.Context) {
	s.lookup(c, discovery.ParseValues(c.Request.URL.Query()))
}

// lookupBody serves POST /lookup. The query is read from a "params" object
// when present, otherwise from the body itself.
func (s *Server) lookupBody(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}

	params := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decodeJSON(body, &params); err != nil {
			writeError(c, errors.InvalidInput("request body must be a JSON object"))
			return
		}
	}
	if inner, ok := params["params"].(map[string]any); ok {
		params = inner
	}
	s.lookup(c, discovery.ParseParams(params))
}

func (s *Server) lookup(c *gin.Context, q discovery.Query) {
	resp, err := s.svc.Discovery.Lookup(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// resolveDID serves the DID document for an identifier. Unknown
// identifiers get 404 with an empty object.
func (s *Server) resolveDID(c *gin.Context) {
	doc, found, err := s.svc.Resolver.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{})
		return
	}

	data, err := json.Marshal(doc)
	if err != nil {
		writeError(c, errors.Wrap(err, "failed to encode document"))
		return
	}
	c.Data(http.StatusOK, did.MediaType, data)
}

// verify checks a third-party attestation.
func (s *Server) verify(c *gin.Context) {
	var req attestation.Request
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}

	res, err := s.svc.Attestation.Verify(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// deregister removes an agent on a request signed with its registered key.
func (s *Server) deregister(c *gin.Context) {
	var req registration.DeregisterRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}

	if err := s.svc.Registration.Deregister(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"agent_id": req.AgentID,
	})
}

// --- Helpers ---

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, errors.InvalidInput("request body unreadable or too large", errors.WithCause(err))
	}
	return body, nil
}

// bindJSON decodes the body into v keeping numbers verbatim, so signed
// claims canonicalize the way their producer saw them.
func bindJSON(c *gin.Context, v any) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if err := decodeJSON(body, v); err != nil {
		return errors.InvalidInput("request body must be a JSON object", errors.WithCause(err))
	}
	return nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// writeError answers with the public message of err and keeps err on the
// context for the request log.
func writeError(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(errors.HTTPStatus(err), gin.H{
		"success": false,
		"message": errors.PublicMessage(err),
	})
}
