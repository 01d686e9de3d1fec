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
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gock "gopkg.in/h2non/gock.v1"
)

const (
	testKeyName   = "projects/test-project/locations/global/keys/key-1"
	testKeyPath   = "/v2/" + testKeyName
	testKeysPath  = "/v2/projects/test-project/locations/global/keys"
	testOpName    = "operations/akmf.p7-1234"
	testKeyString = "AIzaSyTestKeyString"
)

func keyResponse(key map[string]interface{}) map[string]interface{} {
	key["@type"] = "type.googleapis.com/google.api.apikeys.v2.Key"
	return key
}

func doneOperation(key map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":     testOpName,
		"done":     true,
		"response": keyResponse(key),
	}
}

func pendingOperation() map[string]interface{} {
	return map[string]interface{}{"name": testOpName}
}

// Tests the API methods for keys.
func TestKeys(t *testing.T) {
	setRetriesForTests()
	baseURL := NewTestClientConfig().BaseURL

	cases := TestCases{
		{
			"Create Key",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Post(testKeysPath).
					JSON(map[string]interface{}{"displayName": "My first API key - raw"}).
					Reply(http.StatusOK).
					JSON(doneOperation(map[string]interface{}{
						"name":        testKeyName,
						"displayName": "My first API key - raw",
						"keyString":   testKeyString,
					}))

				key, err := api.CreateKeyWithSuffix(ctx, "raw")
				assert.NoError(t, err)
				assert.Equal(t, testKeyName, key.Name)
				assert.Equal(t, "My first API key - raw", key.DisplayName)
				assert.Equal(t, testKeyString, key.KeyString)
				assert.True(t, gock.IsDone())
				return nil
			},
		},
		{
			"Create Key With ID Polls Operation",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Post(testKeysPath).
					MatchParam("keyId", "key-1").
					Reply(http.StatusOK).
					JSON(pendingOperation())
				MockURL(baseURL+"/v2/"+testOpName, http.StatusOK, pendingOperation())
				MockURL(baseURL+"/v2/"+testOpName, http.StatusOK, doneOperation(map[string]interface{}{
					"name":      testKeyName,
					"keyString": testKeyString,
				}))

				key, err := api.CreateKey(ctx, "key-1", "named", nil)
				assert.NoError(t, err)
				assert.Equal(t, testKeyName, key.Name)
				assert.True(t, gock.IsDone())
				return nil
			},
		},
		{
			"Create Key Operation Error",
			func(t *testing.T, api *Client, ctx context.Context) error {
				MockURL(baseURL+testKeysPath, http.StatusOK, map[string]interface{}{
					"name": testOpName,
					"done": true,
					"error": map[string]interface{}{
						"code":    8,
						"message": "quota exceeded",
					},
				})

				key, err := api.CreateKeyWithSuffix(ctx, "raw")
				assert.Nil(t, key)
				var opErr *OperationError
				assert.True(t, errors.As(err, &opErr))
				assert.Equal(t, 8, opErr.Code)
				assert.Contains(t, err.Error(), "quota exceeded")
				return nil
			},
		},
		{
			"Create Key Without Project",
			func(t *testing.T, api *Client, ctx context.Context) error {
				api.Config.ProjectID = ""
				_, err := api.CreateKeyWithSuffix(ctx, "raw")
				assert.Equal(t, ErrNoProject, err)
				return nil
			},
		},
		{
			"Get Key",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Get(testKeyPath).
					Reply(http.StatusOK).
					JSON(map[string]interface{}{
						"name":        testKeyName,
						"uid":         "c1d2",
						"displayName": "k",
						"createTime":  "2023-01-02T03:04:05.123456Z",
						"etag":        "W/\"abc\"",
						"restrictions": map[string]interface{}{
							"serverKeyRestrictions": map[string]interface{}{
								"allowedIps": []string{"10.0.0.1"},
							},
						},
					})

				key, err := api.GetKey(ctx, "key-1")
				assert.NoError(t, err)
				assert.Equal(t, "c1d2", key.UID)
				assert.NotNil(t, key.CreateTime)
				assert.Equal(t, []string{"10.0.0.1"}, key.Restrictions.ServerKeyRestrictions.AllowedIps)
				assert.Empty(t, key.KeyString)
				return nil
			},
		},
		{
			"Get Key By Full Name",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Get("/v2/projects/other/locations/global/keys/key-9").
					Reply(http.StatusOK).
					JSON(map[string]interface{}{"name": "projects/other/locations/global/keys/key-9"})

				key, err := api.GetKey(ctx, "projects/other/locations/global/keys/key-9")
				assert.NoError(t, err)
				assert.Equal(t, "projects/other/locations/global/keys/key-9", key.Name)
				return nil
			},
		},
		{
			"Get Key Malformed Name",
			func(t *testing.T, api *Client, ctx context.Context) error {
				_, err := api.GetKey(ctx, "projects/other/keys/key-9")
				assert.Error(t, err)
				_, err = api.GetKey(ctx, "")
				assert.Equal(t, ErrEmptyKeyID, err)
				return nil
			},
		},
		{
			"Get Key String",
			func(t *testing.T, api *Client, ctx context.Context) error {
				MockURL(baseURL+testKeyPath+"/keyString", http.StatusOK, map[string]string{"keyString": testKeyString})

				ks, err := api.GetKeyString(ctx, "key-1")
				assert.NoError(t, err)
				assert.Equal(t, testKeyString, ks)
				return nil
			},
		},
		{
			"Update Key",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Patch(testKeyPath).
					MatchParam("updateMask", "displayName,annotations").
					JSON(map[string]interface{}{
						"name":        testKeyName,
						"displayName": "renamed",
						"annotations": map[string]string{"team": "infra"},
					}).
					Reply(http.StatusOK).
					JSON(doneOperation(map[string]interface{}{
						"name":        testKeyName,
						"displayName": "renamed",
					}))

				key, err := api.UpdateKey(ctx, &Key{
					Name:        "key-1",
					DisplayName: "renamed",
					Annotations: map[string]string{"team": "infra"},
				}, "displayName", "annotations")
				assert.NoError(t, err)
				assert.Equal(t, "renamed", key.DisplayName)
				assert.True(t, gock.IsDone())
				return nil
			},
		},
		{
			"Update Key Requires Mask",
			func(t *testing.T, api *Client, ctx context.Context) error {
				_, err := api.UpdateKey(ctx, &Key{Name: "key-1"})
				assert.Error(t, err)
				_, err = api.UpdateKey(ctx, nil, "displayName")
				assert.Error(t, err)
				return nil
			},
		},
		{
			"Lookup Key",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Get("/v2/keys:lookupKey").
					MatchParam("keyString", testKeyString).
					Reply(http.StatusOK).
					JSON(map[string]string{
						"parent": "projects/123456/locations/global",
						"name":   "projects/123456/locations/global/keys/key-1",
					})

				lookup, err := api.LookupKey(ctx, testKeyString)
				assert.NoError(t, err)
				assert.Equal(t, "projects/123456/locations/global", lookup.Parent)
				assert.Equal(t, "projects/123456/locations/global/keys/key-1", lookup.Name)
				assert.True(t, gock.IsDone())

				_, err = api.LookupKey(ctx, "")
				assert.Error(t, err)
				return nil
			},
		},
		{
			"List Keys",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Get(testKeysPath).
					MatchParam("pageSize", "2").
					MatchParam("pageToken", "next").
					MatchParam("showDeleted", "true").
					Reply(http.StatusOK).
					JSON(map[string]interface{}{
						"keys": []map[string]string{
							{"name": testKeyName},
							{"name": "projects/test-project/locations/global/keys/key-2"},
						},
						"nextPageToken": "after",
					})

				keys, err := api.ListKeys(ctx, 2, "next", true)
				assert.NoError(t, err)
				assert.Len(t, keys.Keys, 2)
				assert.Equal(t, "after", keys.NextPageToken)
				assert.True(t, gock.IsDone())
				return nil
			},
		},
		{
			"Delete Key",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Delete(testKeyPath).
					MatchParam("etag", "abc").
					Reply(http.StatusOK).
					JSON(doneOperation(map[string]interface{}{
						"name":       testKeyName,
						"deleteTime": "2023-01-02T03:04:05Z",
					}))

				key, err := api.DeleteKey(ctx, "key-1", "abc")
				assert.NoError(t, err)
				assert.NotNil(t, key.DeleteTime)
				assert.True(t, gock.IsDone())
				return nil
			},
		},
		{
			"Undelete Key",
			func(t *testing.T, api *Client, ctx context.Context) error {
				gock.New(baseURL).
					Post(testKeyPath + ":undelete").
					Reply(http.StatusOK).
					JSON(doneOperation(map[string]interface{}{"name": testKeyName}))

				key, err := api.UndeleteKey(ctx, "key-1")
				assert.NoError(t, err)
				assert.Nil(t, key.DeleteTime)
				assert.True(t, gock.IsDone())
				return nil
			},
		},
	}
	cases.Run(t)
}

func TestWaitOperation_GetError_StopsPolling(t *testing.T) {
	setRetriesForTests()
	defer gock.Off()

	gock.New("http://example.com").
		Get("/v2/" + testOpName).
		Reply(http.StatusForbidden).
		JSON(map[string]interface{}{
			"error": map[string]interface{}{"code": 403, "message": "denied", "status": "PERMISSION_DENIED"},
		})

	c, ctx, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	gock.InterceptClient(&c.HttpClient)
	defer gock.RestoreClient(&c.HttpClient)

	_, err = c.WaitOperation(ctx, &Operation{Name: testOpName})
	apiErr, ok := err.(*Error)
	assert.True(t, ok)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Status)
	assert.True(t, gock.IsDone())
}

func TestWaitOperation_CancelledContext(t *testing.T) {
	setRetriesForTests()
	defer gock.Off()

	c, _, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	gock.InterceptClient(&c.HttpClient)
	defer gock.RestoreClient(&c.HttpClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.WaitOperation(ctx, &Operation{Name: testOpName})
	assert.Error(t, err)
}

func TestWaitOperation_Nil(t *testing.T) {
	c, ctx, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	_, err = c.WaitOperation(ctx, nil)
	assert.Error(t, err)
}

func TestWaitOperation_DoneWithoutResponse(t *testing.T) {
	c, ctx, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	_, err = c.waitForKey(ctx, &Operation{Name: testOpName, Done: true})
	assert.EqualError(t, err, "apikeys: operation "+testOpName+" finished without a key")
}

func withKeyID(t *testing.T, id string) {
	orig := NewKeyID
	NewKeyID = func() string { return id }
	t.Cleanup(func() { NewKeyID = orig })
}

func TestCreateKeyWithSuffix_RetryAfterServerError_ReturnsSingleKey(t *testing.T) {
	setRetriesForTests()
	defer gock.Off()
	withKeyID(t, "key-1")

	// the first attempt reaches the service but reports a 500; the retry
	// carries the same keyId and is rejected as a duplicate.
	gock.New("http://example.com").
		Post(testKeysPath).
		MatchParam("keyId", "key-1").
		Reply(http.StatusInternalServerError)
	gock.New("http://example.com").
		Post(testKeysPath).
		MatchParam("keyId", "key-1").
		Reply(http.StatusConflict).
		JSON(map[string]interface{}{
			"error": map[string]interface{}{"code": 409, "message": "key already exists", "status": "ALREADY_EXISTS"},
		})
	gock.New("http://example.com").
		Get(testKeyPath).
		Reply(http.StatusOK).
		JSON(map[string]interface{}{"name": testKeyName, "displayName": "My first API key - raw"})
	MockURL("http://example.com"+testKeyPath+"/keyString", http.StatusOK, map[string]string{"keyString": testKeyString})

	c, ctx, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	gock.InterceptClient(&c.HttpClient)
	defer gock.RestoreClient(&c.HttpClient)

	key, err := c.CreateKeyWithSuffix(ctx, "raw")
	assert.NoError(t, err)
	assert.Equal(t, testKeyName, key.Name)
	assert.Equal(t, testKeyString, key.KeyString)
	assert.True(t, gock.IsDone())
}

func TestCreateKey_WithoutKeyID_IsNotRetried(t *testing.T) {
	setRetriesForTests()
	defer gock.Off()

	gock.New("http://example.com").
		Post(testKeysPath).
		Reply(http.StatusInternalServerError)
	gock.New("http://example.com").
		Post(testKeysPath).
		Reply(http.StatusOK).
		JSON(doneOperation(map[string]interface{}{"name": testKeyName}))

	c, ctx, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	gock.InterceptClient(&c.HttpClient)
	defer gock.RestoreClient(&c.HttpClient)

	key, err := c.CreateKey(ctx, "", "unnamed", nil)
	assert.Nil(t, key)
	apiErr, ok := err.(*Error)
	assert.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.True(t, gock.IsPending())
}

func TestNewKeyID_Format(t *testing.T) {
	re := regexp.MustCompile(`^[a-z]([a-z0-9-]{0,61}[a-z0-9])?$`)
	a, b := NewKeyID(), NewKeyID()
	assert.Regexp(t, re, a)
	assert.NotEqual(t, a, b)
}

func TestWaitOperation_NeverDone_TimesOut(t *testing.T) {
	setRetriesForTests()
	OperationTimeout = 30 * time.Millisecond
	defer setRetriesForTests()
	defer gock.Off()

	gock.New("http://example.com").
		Get("/v2/" + testOpName).
		Persist().
		Reply(http.StatusOK).
		JSON(map[string]interface{}{"name": testOpName, "done": false})

	c, ctx, err := NewTestClient(t, nil)
	assert.NoError(t, err)
	gock.InterceptClient(&c.HttpClient)
	defer gock.RestoreClient(&c.HttpClient)

	op, err := c.WaitOperation(ctx, &Operation{Name: testOpName})
	assert.Nil(t, op)
	assert.EqualError(t, err, "apikeys: operation "+testOpName+" did not finish within 30ms")
}
