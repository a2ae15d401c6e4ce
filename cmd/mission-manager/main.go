// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//          http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beeker1121/goque"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/dataman"
	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/mission"
)

var mqttClient MQTT.Client

var buildtime string

func main() {
	InitLogging()
	zap.S().Infof("This is mission-manager build date: %s", buildtime)

	InitPrometheus()

	serialNumber, err := env.GetAsString("SERIAL_NUMBER", true, "")
	if err != nil {
		zap.S().Fatalf("Error reading serial number: %s", err)
	}

	systemID, err := env.GetAsInt("MAV_SYSTEM_ID", false, 1)
	if err != nil {
		zap.S().Errorf("Error parsing system id: %s", err)
		return
	}
	componentID, err := env.GetAsInt("MAV_COMPONENT_ID", false, 1)
	if err != nil {
		zap.S().Errorf("Error parsing component id: %s", err)
		return
	}

	actionTimeoutMs, err := env.GetAsInt("MISSION_ACTION_TIMEOUT_MS", false, 5000)
	if err != nil {
		zap.S().Errorf("Error parsing action timeout: %s", err)
		return
	}
	retryTimeoutMs, err := env.GetAsInt("MISSION_RETRY_TIMEOUT_MS", false, 500)
	if err != nil {
		zap.S().Errorf("Error parsing retry timeout: %s", err)
		return
	}

	verbose, err := env.GetAsBool("VERBOSE_WPM", false, false)
	if err != nil {
		zap.S().Errorf("Error parsing verbose flag: %s", err)
		return
	}

	datamanPath, err := env.GetAsString("DATAMAN_PATH", false, "/data/dataman.db")
	if err != nil {
		zap.S().Errorf("Error reading dataman path: %s", err)
		return
	}

	// Setting up the persistent record store
	zap.S().Debugf("Opening dataman store at %s", datamanPath)

	store, err := dataman.NewSQLiteStore(datamanPath)
	if err != nil {
		zap.S().Fatalf("Error opening dataman store: %s", err)
	}

	InitHealthCheck(store)

	// Setting up the outbound frame spool
	zap.S().Debugf("Setting up outbound queue")

	outQueue, err := setupQueue()
	if err != nil {
		zap.S().Fatalf("Error setting up outbound queue: %s", err)
	}

	// Setting up MQTT and the protocol manager
	zap.S().Debugf("Setting up MQTT")

	mqttClient = setupMQTT(serialNumber)

	shared := mission.NewSharedState()
	spool := &frameSpool{pq: outQueue, sysID: uint8(systemID), compID: uint8(componentID)}
	status := &statusTextPublisher{client: mqttClient, topic: statusTopic(serialNumber)}
	notifier := &missionStateNotifier{client: mqttClient, topic: stateTopic(serialNumber)}

	manager := mission.NewManager(mission.Config{
		SystemID:      uint8(systemID),
		ComponentID:   uint8(componentID),
		ActionTimeout: time.Duration(actionTimeoutMs) * time.Millisecond,
		RetryTimeout:  time.Duration(retryTimeoutMs) * time.Millisecond,
		Verbose:       verbose,
	}, shared, store, spool, status, notifier)

	subscribeMission(mqttClient, serialNumber, manager)

	go publishQueueToBroker(outQueue, mqttClient, outTopic(serialNumber))
	go runTickLoop(manager)

	awaitShutdown(store, outQueue)
}

func awaitShutdown(store *dataman.SQLiteStore, outQueue *goque.Queue) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigs
	zap.S().Infof("Received SIG %v", sig)

	mqttClient.Disconnect(1000)

	if err := outQueue.Close(); err != nil {
		zap.S().Errorf("Error closing outbound queue: %s", err)
	}
	if err := store.Close(); err != nil {
		zap.S().Errorf("Error closing dataman store: %s", err)
	}

	zap.S().Infof("Successful shutdown. Exiting.")
	os.Exit(0)
}

func runTickLoop(manager *mission.Manager) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		manager.Tick(time.Now())
	}
}

func InitLogging() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	_ = logger.New(logLevel)
}

func InitPrometheus() {
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck(store *dataman.SQLiteStore) {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	health.AddReadinessCheck("dataman", store.Ping)
	health.AddLivenessCheck("dataman", store.Ping)

	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
