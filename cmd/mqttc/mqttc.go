package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttc"
)

type topics []string

func (t *topics) String() string {
	return strings.Join(*t, ",")
}

func (t *topics) Set(v string) error {
	*t = append(*t, v)
	return nil
}

type program struct {
	client     *mqttc.Client
	configFlag string
	execDir    string

	subscribe topics
	qos       uint
	pubTopic  string
	pubMsg    string
	retain    bool

	cancel context.CancelFunc
}

var (
	topicColor   = color.New(color.FgCyan, color.Bold)
	payloadColor = color.New(color.FgWhite)
	warnColor    = color.New(color.FgYellow)
)

func (p *program) Start(s service.Service) error {
	p.client = mqttc.NewClient()
	if p.configFlag != "" {
		if err := p.client.LoadFromFile(p.configFlag); err != nil {
			return err
		}
		log.Infoln("Using config file:", p.configFlag)
	} else {
		found := false
		for _, name := range []string{"config.json", "config.toml"} {
			toTry := filepath.Join(p.execDir, name)
			if fileExists(toTry) {
				if err := p.client.LoadFromFile(toTry); err != nil {
					return err
				}
				log.Infoln("Using config file:", toTry)
				found = true
				break
			}
		}
		if !found {
			log.Infoln("No config file specified or found. Using defaults.")
		}
	}

	p.client.OnMessage(p.print)
	p.client.OnWarning(func(err error) {
		warnColor.Fprintln(os.Stderr, "warning:", err)
	})
	p.client.OnDisconnect(func(reason error, forced bool) {
		if !forced {
			warnColor.Fprintln(os.Stderr, "connection lost:", reason)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		if err := p.run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal(err)
		}
	}()
	return nil
}

func (p *program) run(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := p.client.Connect(connectCtx); err != nil {
		return err
	}

	qos := mqttc.QoS(p.qos)
	for _, t := range p.subscribe {
		granted, err := p.client.Subscribe(ctx, t, qos)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"topic": t, "qos": granted}).Info("subscribed")
	}

	if p.pubTopic != "" {
		err := p.client.Publish(ctx, mqttc.Message{
			Topic:   p.pubTopic,
			Payload: []byte(p.pubMsg),
			QoS:     qos,
			Retain:  p.retain,
		})
		if err != nil {
			return err
		}
		log.WithField("topic", p.pubTopic).Info("published")
	}
	return nil
}

func (p *program) print(msg mqttc.Message) {
	if color.NoColor {
		log.WithFields(log.Fields{"topic": msg.Topic, "qos": msg.QoS, "retain": msg.Retain}).Info(string(msg.Payload))
		return
	}
	topicColor.Print(msg.Topic)
	if msg.Retain {
		warnColor.Print(" (retained)")
	}
	payloadColor.Println(" " + string(msg.Payload))
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func main() {
	svcFlag := flag.String("service", "", "Control the system service.")
	cnfFlag := flag.String("c", "", "Path of config file, JSON or TOML.")
	prg := program{}
	flag.Var(&prg.subscribe, "t", "Topic filter to subscribe to. May be repeated.")
	flag.UintVar(&prg.qos, "q", 0, "QoS for subscriptions and the published message.")
	flag.StringVar(&prg.pubTopic, "p", "", "Topic to publish a message to once connected.")
	flag.StringVar(&prg.pubMsg, "m", "", "Payload of the published message.")
	flag.BoolVar(&prg.retain, "r", false, "Publish with the retain flag.")
	flag.Parse()

	if prg.qos > 2 {
		log.Fatalf("invalid QoS %d", prg.qos)
	}

	ePath, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}
	eDir, _ := filepath.Split(ePath)

	// Set defaults before config override.
	if service.Interactive() {
		log.SetLevel(log.DebugLevel)
	} else {
		color.NoColor = true
		f, err := os.OpenFile(filepath.Join(eDir, "mqttc.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal(err)
		}
		log.SetOutput(f)
	}

	prg.configFlag, prg.execDir = *cnfFlag, eDir
	svcConfig := service.Config{
		Name:        "mqttc",
		DisplayName: "mqttc MQTT client",
		Description: "mqttc MQTT client. See https://github.com/RoanBrand/mqttc",
	}

	s, err := service.New(&prg, &svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	if len(*svcFlag) != 0 {
		err := service.Control(s, *svcFlag)
		if err != nil {
			log.Printf("Valid actions: %q\n", service.ControlAction)
			log.Fatal(err)
		}
		return
	}

	err = s.Run()
	if err != nil {
		log.Fatal(err)
	}
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
