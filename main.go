package main

import (
	"flag"
	"log"

	"github.com/billingcat/quickinvoice/controller"
	"github.com/billingcat/quickinvoice/model"
)

func dothings() error {
	configFile := flag.String("config", "config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := model.LoadConfig(*configFile)
	if err != nil {
		return err
	}
	return controller.NewController(cfg)
}

func main() {
	if err := dothings(); err != nil {
		log.Fatal(err)
	}
}
