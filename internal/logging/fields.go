package logging

import "github.com/sirupsen/logrus"

// BaseFields tags entries emitted outside a request.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields tags one KV request log line.
func RequestFields(method, key, status, requestID string) logrus.Fields {
	return logrus.Fields{
		"method":       method,
		"key":          key,
		"cache_status": status,
		"request_id":   requestID,
	}
}
