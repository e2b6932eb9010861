package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// censoringFormatter masks tokens in log messages and fields before they are
// written out.
type censoringFormatter struct {
	secrets  []string
	delegate logrus.Formatter
}

func (f *censoringFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Message = f.censor(entry.Message)
	for key, value := range entry.Data {
		switch typed := value.(type) {
		case string:
			entry.Data[key] = f.censor(typed)
		case error:
			if censored := f.censor(typed.Error()); censored != typed.Error() {
				entry.Data[key] = fmt.Errorf("%s", censored)
			}
		}
	}
	return f.delegate.Format(entry)
}

func (f *censoringFormatter) censor(s string) string {
	for _, secret := range f.secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "xxx")
	}
	return s
}
