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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// OperationPollInterval is the first wait between operation polls.
	OperationPollInterval = 500 * time.Millisecond

	// OperationPollMax caps the wait between operation polls.
	OperationPollMax = 10 * time.Second

	// OperationTimeout bounds the total time spent waiting for an operation.
	OperationTimeout = 2 * time.Minute
)

var errOperationPending = errors.New("apikeys: operation still running")

// Status is the error carried by a finished operation.
type Status struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Details []json.RawMessage `json:"details,omitempty"`
}

// Operation represents a long-running operation as returned by the API.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done,omitempty"`
	Error    *Status         `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// OperationError is returned when an operation finished with an error.
type OperationError struct {
	Operation string
	Code      int
	Message   string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("apikeys: operation %s failed: code=%d msg='%s'", e.Operation, e.Code, e.Message)
}

// GetOperation retrieves the latest state of an operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	req, err := c.newRequest("GET", name, nil)
	if err != nil {
		return nil, err
	}

	op := Operation{}
	_, err = c.do(ctx, req, &op)
	if err != nil {
		return nil, err
	}

	return &op, nil
}

// WaitOperation polls op until it is done. A done operation that carries an
// error is returned as an *OperationError.
func (c *Client) WaitOperation(ctx context.Context, op *Operation) (*Operation, error) {
	if op == nil {
		return nil, errors.New("apikeys: nil operation")
	}

	if !op.Done {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = OperationPollInterval
		exp.MaxInterval = OperationPollMax
		exp.MaxElapsedTime = OperationTimeout
		exp.Reset()

		name := op.Name
		done, err := backoff.RetryWithData(func() (*Operation, error) {
			operationPolls.Inc()
			cur, err := c.GetOperation(ctx, name)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			if !cur.Done {
				return nil, errOperationPending
			}
			return cur, nil
		}, backoff.WithContext(exp, ctx))
		if errors.Is(err, errOperationPending) {
			return nil, fmt.Errorf("apikeys: operation %s did not finish within %s", name, OperationTimeout)
		}
		if err != nil {
			return nil, err
		}
		op = done
	}

	if op.Error != nil {
		return op, &OperationError{Operation: op.Name, Code: op.Error.Code, Message: op.Error.Message}
	}

	return op, nil
}

// waitForKey waits for op and decodes its response as a Key.
func (c *Client) waitForKey(ctx context.Context, op *Operation) (*Key, error) {
	op, err := c.WaitOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	if len(op.Response) == 0 {
		return nil, fmt.Errorf("apikeys: operation %s finished without a key", op.Name)
	}

	key := Key{}
	if err := json.Unmarshal(op.Response, &key); err != nil {
		return nil, err
	}

	return &key, nil
}
