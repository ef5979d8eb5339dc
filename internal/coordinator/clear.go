package coordinator

import (
	"context"
	"crypto/subtle"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"attendancehub/internal/events"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

var errPhraseMismatch = errors.New("clear phrase mismatch")

func (c *Coordinator) onClearFingerprints(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	email := conn.ClientType()
	if err := c.requestClear(ctx, email, p.(*types.ClearFingerprintsRequest)); err != nil {
		c.finish([]string{email}, types.EventClearFingerprintsFeedback, nil, err)
	}
}

func (c *Coordinator) requestClear(ctx context.Context, email string, req *types.ClearFingerprintsRequest) error {
	if err := c.checkPhrase(ctx, email, req.Phrase); err != nil {
		return err
	}

	location, err := c.targetDevice(ctx, email, req.DeviceLocation)
	if err != nil {
		return err
	}
	return c.forward(location, types.EventEmptyFingerprintsRequest, types.EmptyFingerprintsCommand{
		Message:     "Requesting to clear all fingerprints",
		RequestedBy: email,
	})
}

// checkPhrase accepts the requester's personal phrase when they are a level
// adviser with one set, otherwise the configured global phrase.
func (c *Coordinator) checkPhrase(ctx context.Context, email, phrase string) error {
	incorrect := fail("The phrase entered is incorrect", errPhraseMismatch)

	adviser, err := c.store.GetLevelAdviserByEmail(ctx, email)
	switch {
	case err == nil && adviser.ClearPhraseHash != "":
		if bcrypt.CompareHashAndPassword([]byte(adviser.ClearPhraseHash), []byte(phrase)) != nil {
			return incorrect
		}
		return nil
	case err != nil && !errors.Is(err, interfaces.ErrNotFound):
		return err
	}

	if c.config.ClearPhrase == "" ||
		subtle.ConstantTimeCompare([]byte(phrase), []byte(c.config.ClearPhrase)) != 1 {
		return incorrect
	}
	return nil
}

// onEmptyFingerprintsResponse archives and purges every record once the
// device confirms its sensor is empty.
func (c *Coordinator) onEmptyFingerprintsResponse(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	resp := p.(*types.ClearFingerprintsResponse)
	requesters := c.resolveRequesters(ctx, conn, "", types.EventClearFingerprintsFeedback, resp.RequestedBy)

	if resp.Error {
		c.finish(requesters, types.EventClearFingerprintsFeedback, nil,
			fail("Fail to clear all fingerprints", hardwareError(resp.Message)))
		return
	}

	if err := c.store.ArchiveAndPurge(ctx); err != nil {
		c.finish(requesters, types.EventClearFingerprintsFeedback, nil, err)
		return
	}
	log.WithField("device_location", conn.ClientType()).Warn("all records archived and purged")

	var requestedBy string
	if len(requesters) > 0 {
		requestedBy = requesters[0]
	}
	c.publish(events.SubjectFingerprintsCleared, events.FingerprintsCleared{
		DeviceLocation: conn.ClientType(),
		RequestedBy:    requestedBy,
		At:             c.now().UTC(),
	})
	c.reply(requesters, types.EventClearFingerprintsFeedback, types.Feedback{Message: "All fingerprints cleared successfully"})
}
