package simulator

import (
	"github.com/opd-ai/a2dpstream/event"
	"github.com/sirupsen/logrus"
)

// LogEvent writes e to the standard logger. Faults log at Error, underruns
// and send failures at Warn, everything else at Info or Debug.
func LogEvent(e event.Event) {
	entry := logrus.WithFields(logrus.Fields{
		"function": "LogEvent",
		"kind":     e.Kind.String(),
		"role":     e.Role,
		"session":  e.Session,
	})

	switch e.Kind {
	case event.KindStateChanged:
		entry.WithFields(logrus.Fields{
			"scope": e.Scope,
			"from":  e.From,
			"to":    e.To,
		}).Info("State changed")
	case event.KindError:
		entry = entry.WithField("error_kind", e.ErrorKind.String())
		if e.Err != nil {
			entry = entry.WithField("error", e.Err.Error())
		}
		if e.ErrorKind == event.ErrorTransient {
			entry.Warn("Pipeline dropped data")
			return
		}
		entry.Error("Pipeline fault")
	case event.KindSendFailed:
		if e.Err != nil {
			entry = entry.WithField("error", e.Err.Error())
		}
		entry.Warn("Media send failed")
	case event.KindUnderrun:
		entry.Warn("Playback underrun")
	case event.KindVolumeChanged:
		entry.WithField("volume", e.Volume).Info("Volume changed")
	case event.KindMetadata:
		entry.WithFields(logrus.Fields{
			"metadata": e.Metadata,
			"text":     e.Text,
			"value":    e.Value,
		}).Info("Metadata received")
	default:
		entry.Debug("Pipeline event")
	}
}
