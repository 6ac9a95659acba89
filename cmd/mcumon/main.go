package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/mcuconn/pkg/env"
	"github.com/robotalks/mcuconn/pkg/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/mcu/"
)

func init() {
	if val := os.Getenv(env.EnvMQTTURL); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Subscribe("#", func(topic string, payload []byte) {
		switch {
		case strings.HasSuffix(topic, "/"+mqtt.LinkTopic):
			var event mqtt.LinkEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				log.Printf("%s: bad link event: %v", topic, err)
				return
			}
			log.Printf("%s: [%s] %s %s session=%s uid=%q drifted=%v", topic,
				event.Alias, event.Device, event.State, event.Session, event.UID, event.Drifted)
		case strings.HasSuffix(topic, mqtt.SetSuffix):
			log.Printf("%s: set %s", mqtt.PinName(strings.TrimSuffix(topic, mqtt.SetSuffix)), string(payload))
		default:
			val, err := mqtt.ParseValue(payload)
			if err != nil {
				log.Printf("%s: bad value %q", topic, payload)
				return
			}
			log.Printf("%s = %g", mqtt.PinName(topic), val)
		}
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
