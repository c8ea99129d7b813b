// Copyright (c) 2017-2024 Snowflake Computing Inc. All rights reserved.

package gosnowflake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

var random = rand.New(rand.NewSource(time.Now().UnixNano()))

// requestGUIDKey is attached to every URL that carries one and refreshed on
// each retry so the server can tell retries from new requests.
const requestGUIDKey string = "request_guid"

// requestGUIDReplacerI replaces the value of request_guid every time replace
// is called. When the url does not contain request_guid, the original url is
// returned untouched.
type requestGUIDReplacerI interface {
	// replace the url with new ID
	replace() *url.URL
}

// Make requestGUIDReplacer given a url string
func makeRequestGUIDReplacer(urlPtr *url.URL) requestGUIDReplacerI {
	_, err := url.ParseQuery(urlPtr.RawQuery)
	if err != nil {
		return &transientReplacer{urlPtr}
	}
	return &requestGUIDReplacer{urlPtr}
}

// this replacer does nothing but replace the url
type transientReplacer struct {
	urlPtr *url.URL
}

func (replacer *transientReplacer) replace() *url.URL {
	return replacer.urlPtr
}

/*
requestGUIDReplacer is a one-shot object that is created out of the retry loop and
called with replace to change the request_guid's value upon every retry
*/
type requestGUIDReplacer struct {
	urlPtr *url.URL
}

func (replacer *requestGUIDReplacer) replace() *url.URL {
	vs, err := url.ParseQuery(replacer.urlPtr.RawQuery)
	if err != nil {
		return replacer.urlPtr
	}
	if len(vs.Get(requestGUIDKey)) == 0 {
		return replacer.urlPtr
	}
	vs.Del(requestGUIDKey)
	vs.Add(requestGUIDKey, uuid.New().String())
	replacer.urlPtr.RawQuery = vs.Encode()
	return replacer.urlPtr
}

type waitAlgo struct {
	mutex *sync.Mutex   // required for random.Int63n
	base  time.Duration // base wait time
	cap   time.Duration // maximum wait time
}

func randSecondDuration(n time.Duration) time.Duration {
	return time.Duration(random.Int63n(int64(n/time.Second))) * time.Second
}

// decorrelated jitter backoff
func (w *waitAlgo) decorr(attempt int, sleep time.Duration) time.Duration {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	t := 3*sleep - w.base
	switch {
	case t > 0:
		return durationMin(w.cap, randSecondDuration(t)+w.base)
	case t < 0:
		return durationMin(w.cap, randSecondDuration(-t)+3*sleep)
	}
	return w.base
}

var defaultWaitAlgo = &waitAlgo{
	mutex: &sync.Mutex{},
	base:  5 * time.Second,
	cap:   160 * time.Second,
}

type requestFunc func(method, urlStr string, body io.Reader) (*http.Request, error)

type clientInterface interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultMaxRetryCount = 7

type retryHTTP struct {
	ctx           context.Context
	client        clientInterface
	req           requestFunc
	method        string
	fullURL       *url.URL
	headers       map[string]string
	timeout       time.Duration
	maxRetryCount int
	raise4XX      bool
}

func newRetryHTTP(ctx context.Context,
	client clientInterface,
	req requestFunc,
	fullURL *url.URL,
	headers map[string]string,
	timeout time.Duration) *retryHTTP {
	instance := retryHTTP{}
	instance.ctx = ctx
	instance.client = client
	instance.req = req
	instance.method = "GET"
	instance.fullURL = fullURL
	instance.headers = headers
	instance.timeout = timeout
	instance.maxRetryCount = defaultMaxRetryCount
	return &instance
}

func (r *retryHTTP) doRaise4XX(raise4XX bool) *retryHTTP {
	r.raise4XX = raise4XX
	return r
}

func (r *retryHTTP) execute() (res *http.Response, err error) {
	totalTimeout := r.timeout
	logger.WithContext(r.ctx).Debugf("retryHTTP.totalTimeout: %v", totalTimeout)
	retryCounter := 0
	sleepTime := time.Duration(0)

	var rIDReplacer requestGUIDReplacerI

	for {
		req, err := r.req(r.method, r.fullURL.String(), nil)
		if err != nil {
			return nil, err
		}
		if req != nil {
			// req can be nil in tests
			req = req.WithContext(r.ctx)
			for k, v := range r.headers {
				req.Header.Set(k, v)
			}
		}
		res, err = r.client.Do(req)
		if err == nil && res.StatusCode == http.StatusOK {
			// exit if success
			break
		}
		if r.raise4XX && res != nil && res.StatusCode >= 400 && res.StatusCode < 500 {
			// a 4XX on a presigned URL is definitive. The caller builds an
			// error from the HTTP status.
			break
		}

		// context cancel or timeout
		if err != nil {
			var urlError *url.Error
			if errors.As(err, &urlError) &&
				(errors.Is(urlError.Err, context.DeadlineExceeded) ||
					errors.Is(urlError.Err, context.Canceled)) {
				return res, urlError.Err
			}
		}

		// cannot just return 4xx and 5xx status as the error can be sporadic. rerun often helps.
		if err != nil {
			logger.WithContext(r.ctx).Warnf(
				"failed http connection. no response is returned. err: %v. retrying...", err)
		} else {
			logger.WithContext(r.ctx).Warnf(
				"failed http connection. HTTP Status: %v. retrying...", res.StatusCode)
			if err = res.Body.Close(); err != nil {
				logger.Warnf("failed to close response body: %v", err)
			}
		}
		// uses decorrelated jitter backoff
		sleepTime = defaultWaitAlgo.decorr(retryCounter, sleepTime)

		if totalTimeout > 0 {
			logger.WithContext(r.ctx).Debugf("to timeout: %v", totalTimeout)
			// if any timeout is set
			totalTimeout -= sleepTime
			if totalTimeout <= 0 {
				if err != nil {
					return nil, fmt.Errorf("timeout. err: %v. Hanging?", err)
				}
				if res != nil {
					return nil, fmt.Errorf("timeout. HTTP Status: %v. Hanging?", res.StatusCode)
				}
				return nil, errors.New("timeout. Hanging?")
			}
		}
		retryCounter++
		if r.maxRetryCount > 0 && retryCounter > r.maxRetryCount {
			if err != nil {
				return nil, fmt.Errorf("retry count exceeded. err: %v", err)
			}
			return nil, fmt.Errorf("retry count exceeded. HTTP Status: %v", res.StatusCode)
		}
		if rIDReplacer == nil {
			rIDReplacer = makeRequestGUIDReplacer(r.fullURL)
		}
		r.fullURL = rIDReplacer.replace()
		logger.WithContext(r.ctx).Infof("sleeping %v. to timeout: %v. retrying", sleepTime, totalTimeout)

		await := time.NewTimer(sleepTime)
		select {
		case <-await.C:
			// retry the request
		case <-r.ctx.Done():
			await.Stop()
			return res, r.ctx.Err()
		}
	}
	return res, err
}

// getChunk fetches one chunk file over HTTP with retry. The URL comes from
// the chunk file metadata and is typically a presigned cloud storage URL.
func getChunk(
	ctx context.Context,
	scd *snowflakeChunkDownloader,
	fullURL string,
	headers map[string]string,
	timeout time.Duration) (
	*http.Response, error,
) {
	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	return newRetryHTTP(ctx, scd.client, http.NewRequest, u, headers, timeout).doRaise4XX(true).execute()
}
