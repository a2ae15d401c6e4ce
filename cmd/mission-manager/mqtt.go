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
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/beeker1121/goque"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/mission"
	"github.com/united-manufacturing-hub/mission-link/cmd/mission-manager/wire"
	"github.com/united-manufacturing-hub/mission-link/pkg/datamodel"
)

func inTopic(serialNumber string) string {
	return "mission/" + serialNumber + "/in"
}

func outTopic(serialNumber string) string {
	return "mission/" + serialNumber + "/out"
}

func resultTopic(serialNumber string) string {
	return "mission/" + serialNumber + "/result"
}

func stateTopic(serialNumber string) string {
	return "mission/" + serialNumber + "/state"
}

func statusTopic(serialNumber string) string {
	return "mission/" + serialNumber + "/statustext"
}

// newTLSConfig returns the TLS config for the given certificate name
func newTLSConfig(certificateName string) *tls.Config {

	// Import trusted certificates from ca.crt.
	// Alternatively, manually add CA certificates to
	// default openssl CA bundle.
	certpool := x509.NewCertPool()
	pemCerts, err := os.ReadFile("/SSL_certs/mqtt/ca.crt")
	if err == nil {
		certpool.AppendCertsFromPEM(pemCerts)
	}

	// Import client certificate/key pair
	cert, err := tls.LoadX509KeyPair("/SSL_certs/mqtt/"+certificateName+"/tls.crt", "/SSL_certs/mqtt/"+certificateName+"/tls.key")
	if err != nil {
		zap.S().Fatalf("Error: %s", err)
	}

	cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		zap.S().Fatalf("Error: %s", err)
	}

	/* #nosec G402 -- Remote verification is not yet implemented*/
	return &tls.Config{
		RootCAs:            certpool,
		InsecureSkipVerify: true,
		Certificates:       []tls.Certificate{cert},
	}
}

// onConnect outputs the client id once the connection is established
func onConnect(c MQTT.Client) {
	optionsReader := c.OptionsReader()
	zap.S().Infof("Connected to MQTT broker %v", optionsReader.ClientID())
}

// onConnectionLost outputs warn message
func onConnectionLost(c MQTT.Client, err error) {
	optionsReader := c.OptionsReader()
	zap.S().Warnf("Connection lost %v %v", err, optionsReader.ClientID())
}

// setupMQTT connects to the broker. Subscriptions are added separately once
// the protocol manager exists.
func setupMQTT(serialNumber string) MQTT.Client {
	mqttBrokerURL, err := env.GetAsString("MQTT_BROKER_URL", true, "")
	if err != nil {
		zap.S().Fatalf("Error reading broker url: %s", err)
	}
	mqttPassword, err := env.GetAsString("MQTT_PASSWORD", false, "")
	if err != nil {
		zap.S().Errorf("Error reading password: %s", err)
	}
	sslEnabled, err := env.GetAsBool("MQTT_SSL_ENABLED", false, false)
	if err != nil {
		zap.S().Errorf("Error parsing bool from environment variable: %s", err)
	}
	certificateName, err := env.GetAsString("MQTT_CERTIFICATE_NAME", false, "")
	if err != nil {
		zap.S().Errorf("Error reading certificate name: %s", err)
	}

	// The client id has to be unique per connection
	clientID := "mission-manager-" + serialNumber + "-" + uuid.New().String()[:8]

	opts := MQTT.NewClientOptions()
	opts.AddBroker(mqttBrokerURL)
	opts.SetUsername("MISSION_MANAGER")
	if mqttPassword != "" {
		opts.SetPassword(mqttPassword)
	}

	if sslEnabled {
		tlsconfig := newTLSConfig(certificateName)
		opts.SetClientID(clientID).SetTLSConfig(tlsconfig)
	} else {
		opts.SetClientID(clientID)
	}

	opts.SetAutoReconnect(true)
	// cleansession needs to be false so the subscriptions survive reconnects
	opts.SetCleanSession(false)
	opts.SetOnConnectHandler(onConnect)
	opts.SetConnectionLostHandler(onConnectionLost)

	zap.S().Infof("MQTT connection configured %v %v", clientID, mqttBrokerURL)

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		zap.S().Fatalf("Error connecting to broker: %s", token.Error())
	}

	return client
}

// subscribeMission routes inbound protocol frames and executor results to
// the manager.
func subscribeMission(client MQTT.Client, serialNumber string, manager *mission.Manager) {
	if token := client.Subscribe(inTopic(serialNumber), 1, getOnFrameReceived(manager)); token.Wait() && token.Error() != nil {
		zap.S().Fatalf("Error subscribing to frame topic: %s", token.Error())
	}
	if token := client.Subscribe(resultTopic(serialNumber), 1, getOnResultReceived(manager)); token.Wait() && token.Error() != nil {
		zap.S().Fatalf("Error subscribing to result topic: %s", token.Error())
	}
	zap.S().Infof("MQTT subscribed %v %v", inTopic(serialNumber), resultTopic(serialNumber))
}

// getOnFrameReceived decodes one wire frame per MQTT message and hands it to
// the manager. Malformed frames are dropped.
func getOnFrameReceived(manager *mission.Manager) func(MQTT.Client, MQTT.Message) {
	return func(client MQTT.Client, message MQTT.Message) {
		frame, err := wire.Decode(message.Payload())
		if err != nil {
			zap.S().Debugf("Dropping malformed frame: %s", err)
			return
		}
		manager.HandleFrame(frame)
	}
}

func getOnResultReceived(manager *mission.Manager) func(MQTT.Client, MQTT.Message) {
	return func(client MQTT.Client, message MQTT.Message) {
		var result datamodel.MissionResult
		if err := json.Unmarshal(message.Payload(), &result); err != nil {
			zap.S().Warnf("Failed to parse mission result %s: %s", message.Payload(), err)
			return
		}
		select {
		case manager.Results() <- result:
		default:
			zap.S().Warnf("Mission result channel full, dropping event")
		}
	}
}

// frameSpool persists outbound frames until the broker confirms them.
type frameSpool struct {
	pq     *goque.Queue
	sysID  uint8
	compID uint8
}

func (s *frameSpool) Send(msg wire.Message) {
	data, err := wire.Encode(wire.Frame{SysID: s.sysID, CompID: s.compID, Msg: msg})
	if err != nil {
		zap.S().Errorf("Error encoding frame: %s", err)
		return
	}
	if _, err = s.pq.Enqueue(data); err != nil {
		zap.S().Errorf("Error enqueuing frame: %s", err)
	}
}

func setupQueue() (pq *goque.Queue, err error) {
	queuePath, err := env.GetAsString("QUEUE_PATH", false, "/data/queue")
	if err != nil {
		zap.S().Errorf("Error reading queue path: %s", err)
	}

	pq, err = goque.OpenQueue(queuePath)
	if err != nil {
		zap.S().Errorf("Error opening queue: %s", err)
		return
	}
	return
}

// publishQueueToBroker starts an endless loop and publishes the spooled
// frames element by element to the broker.
func publishQueueToBroker(pq *goque.Queue, client MQTT.Client, topic string) {
	for {
		if pq.Length() == 0 {
			time.Sleep(1 * time.Millisecond) // wait 1 ms to avoid high cpu usage
			continue
		}

		topElement, err := pq.Peek()
		if err != nil {
			zap.S().Errorf("Error peeking first element: %s", err)
			return
		}

		token := client.Publish(topic, 1, false, topElement.Value)
		token.Wait() // the library re-sends on its own until confirmed
		if token.Error() != nil {
			zap.S().Warnf("Error publishing frame, keeping it spooled: %s", token.Error())
			time.Sleep(100 * time.Millisecond)
			continue
		}

		// if successfully received at broker delete from stack
		_, err = pq.Dequeue()
		if err != nil {
			zap.S().Fatalf("Error dequeuing element: %s", err)
			return
		}
	}
}

// statusTextPublisher forwards operator-visible errors to the link.
type statusTextPublisher struct {
	client MQTT.Client
	topic  string
}

func (p *statusTextPublisher) Critical(text string) {
	zap.S().Warnf("statustext: %s", text)
	p.client.Publish(p.topic, 1, false, []byte(text))
}

// missionStateNotifier publishes mission state commits for the navigation
// executor.
type missionStateNotifier struct {
	client MQTT.Client
	topic  string
}

func (n *missionStateNotifier) MissionStateChanged(state datamodel.MissionState) {
	event := datamodel.MissionStateChanged{
		TimestampMs: uint64(time.Now().UnixMilli()),
		DatamanID:   state.DatamanID,
		Count:       state.Count,
		CurrentSeq:  state.CurrentSeq,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorf("Error encoding mission state event: %s", err)
		return
	}
	n.client.Publish(n.topic, 1, false, payload)
}
