package observer

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/chaosworks/havok/pkg/probe/comparator"
	"github.com/chaosworks/havok/pkg/types"
	"github.com/chaosworks/havok/pkg/utils/retry"
	"github.com/chaosworks/havok/pkg/utils/stringutils"
)

// HTTPObserver samples an http endpoint and reports the response code as the
// observation value, it passes when the code matches the given criteria
type HTTPObserver struct {
	ObserverName       string
	URL                string
	ResponseTimeout    time.Duration
	InsecureSkipVerify bool
	Criteria           string
	ResponseCode       float64

	client *http.Client
}

// NewHTTPObserver returns an http GET observer with the given pass criteria
func NewHTTPObserver(name, url string, timeout time.Duration, criteria string, responseCode float64) *HTTPObserver {
	return &HTTPObserver{
		ObserverName:    name,
		URL:             url,
		ResponseTimeout: timeout,
		Criteria:        criteria,
		ResponseCode:    responseCode,
	}
}

func (o *HTTPObserver) Name() string {
	return o.ObserverName
}

// Start initializes the http client, the targets are not used since the url
// already addresses the system under observation
func (o *HTTPObserver) Start(targets []types.Target) (string, error) {
	// initialize simple http client with default attributes
	o.client = &http.Client{Timeout: o.ResponseTimeout}
	// impose properties to http client with cert check disabled
	if o.InsecureSkipVerify {
		transCfg := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		o.client = &http.Client{Transport: transCfg, Timeout: o.ResponseTimeout}
	}

	// probe the endpoint once before observation begins so that a dead url
	// degrades the observer at startup instead of failing every sample
	if err := retry.Times(3).Wait(1 * time.Second).Try(func(attempt uint) error {
		resp, err := o.client.Get(o.URL)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}); err != nil {
		return "", errors.Errorf("unable to reach %s, %v", o.URL, err)
	}
	return o.ObserverName + "-" + stringutils.GetRunID(), nil
}

// Observe sends a GET request and matches the response code to the criteria
func (o *HTTPObserver) Observe(handle string) (types.Observation, error) {
	resp, err := o.client.Get(o.URL)
	if err != nil {
		return types.Observation{}, errors.Errorf("unable to reach %s, %v", o.URL, err)
	}
	defer resp.Body.Close()

	code := float64(resp.StatusCode)
	passed := comparator.FirstValue(o.ResponseCode).
		SecondValue(code).
		Criteria(o.Criteria).
		CompareFloat() == nil

	return types.Observation{
		Observer:  o.ObserverName,
		Timestamp: time.Now(),
		Value:     code,
		Message:   resp.Status,
		Passed:    &passed,
	}, nil
}

// Stop releases the observation session
func (o *HTTPObserver) Stop(handle string) error {
	o.client.CloseIdleConnections()
	return nil
}
