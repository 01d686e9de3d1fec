// Copyright 2021 IBM Corp.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apikeys

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger writes client diagnostics.
type Logger interface {
	Info(...interface{})
}

type logger struct {
	writer func(...interface{})
}

// NewLogger wraps a Println style function.
func NewLogger(writer func(...interface{})) Logger {
	return &logger{writer: writer}
}

func (l *logger) Info(args ...interface{}) {
	if l.writer != nil {
		l.writer(args...)
	}
}

type zerologLogger struct {
	zl *zerolog.Logger
}

// NewZerologLogger returns a Logger that writes at info level to zl, or to
// the global zerolog logger when zl is nil.
func NewZerologLogger(zl *zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) Info(args ...interface{}) {
	zl := l.zl
	if zl == nil {
		zl = &log.Logger
	}
	zl.Info().Msg(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

const redacted = "***Value redacted***"

var keyStringPattern = regexp.MustCompile(`("keyString"\s*:\s*")[^"]*(")`)

// redact replaces each of the given secrets in s and masks every keyString
// value in JSON bodies.
func redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return keyStringPattern.ReplaceAllString(s, "${1}"+redacted+"${2}")
}

func (c *Client) dump(req *http.Request, resp *http.Response, body []byte, token string) {
	switch c.Config.Verbose {
	case VerboseAll:
	case VerboseFailOnly:
		if resp.StatusCode < http.StatusBadRequest {
			return
		}
	default:
		return
	}

	reqDump, err := httputil.DumpRequest(req, false)
	if err != nil {
		c.Logger.Info("unable to dump request:", err)
		return
	}
	respDump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		c.Logger.Info("unable to dump response:", err)
		return
	}

	c.Logger.Info(redact(string(reqDump), token))
	c.Logger.Info(redact(string(respDump)+string(body), token))
}
