package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// minSignalLength is the shortest record the conv stack can reduce without
// collapsing to an empty sequence: the pre-conv consumes its kernel width and
// the five stride-2 stages each halve what remains.
const minSignalLength = 64

// ClassifyRequest carries one record as channels x samples.
type ClassifyRequest struct {
	Signal [][]float32 `json:"signal"`
}

// ClassifyResponse reports the per-class probabilities for one record.
type ClassifyResponse struct {
	ID            string    `json:"id"`
	Probabilities []float32 `json:"probabilities"`
}

func (s *Server) handleClassify(c *echo.Context) error {
	req, err := decodeJSON[ClassifyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	cfg := s.model.Config()
	if len(req.Signal) != cfg.InputChannels {
		return writeBadRequest(c, fmt.Sprintf("signal must have %d channels, got %d", cfg.InputChannels, len(req.Signal)))
	}
	length := len(req.Signal[0])
	for i, ch := range req.Signal {
		if len(ch) != length {
			return writeBadRequest(c, fmt.Sprintf("channel %d has %d samples, channel 0 has %d", i, len(ch), length))
		}
	}
	if length < minSignalLength {
		return writeBadRequest(c, fmt.Sprintf("signal must have at least %d samples, got %d", minSignalLength, length))
	}

	x := tensor.New(1, cfg.InputChannels, length)
	for ch, samples := range req.Signal {
		copy(x.Data[ch*length:(ch+1)*length], samples)
	}

	out, err := s.model.Forward(nn.Eval(), x)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	// The model emits raw logits unless it was configured to activate; the
	// API always returns probabilities.
	if !cfg.ApplyFinalActivation {
		tensor.SigmoidInPlace(out)
	}

	resp := ClassifyResponse{
		ID:            "cls-" + uuid.NewString(),
		Probabilities: append([]float32(nil), out.Data...),
	}
	s.log.Info("classified record", "id", resp.ID, "samples", length)
	return c.JSON(http.StatusOK, resp)
}
