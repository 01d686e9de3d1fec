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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apikeys_client",
			Name:      "requests_total",
			Help:      "API Keys requests by HTTP method and response code.",
		},
		[]string{"method", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apikeys_client",
			Name:      "request_duration_seconds",
			Help:      "Latency of API Keys requests including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	operationPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apikeys_client",
			Name:      "operation_polls_total",
			Help:      "Long-running operation status polls.",
		},
	)
)
