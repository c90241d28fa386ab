package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/saao/timdimm/oxwagon"
)

func usage() {
	str := `oxwagon commands the ox wagon enclosure PLC

Usage:
	oxwagon <port> <command> [arg]

Commands:
	open <seconds>   open completely, auto-close after the watchdog delay
	close            close completely
	monitor          open the slide roof only
	reset            reset the PLC and clear forced closures
	scope            power on the telescope
	light            turn on the enclosure light
	status [file]    print the decoded status registers as JSON,
	                 also writing them to file when given`
	fmt.Println(str)
}

func main() {
	if len(os.Args) < 3 {
		usage()
		return
	}
	port := os.Args[1]
	cmd := os.Args[2]

	ow, err := oxwagon.New(port)
	if err != nil {
		log.Fatal(err)
	}
	defer ow.Disconnect()

	switch cmd {
	case "open":
		delay := 600
		if len(os.Args) > 3 {
			delay, err = strconv.Atoi(os.Args[3])
			if err != nil {
				log.Fatal("bad delay: ", err)
			}
		}
		err = ow.Open(delay)
	case "close":
		err = ow.Close()
	case "monitor":
		err = ow.Monitor()
	case "reset":
		err = ow.Reset()
	case "scope":
		err = ow.Scope()
	case "light":
		err = ow.LightOn()
	case "status":
		var state map[string]bool
		state, err = ow.Status()
		if err != nil {
			break
		}
		b, _ := json.MarshalIndent(state, "", "    ")
		fmt.Println(string(b))
		if len(os.Args) > 3 {
			err = os.WriteFile(os.Args[3], b, 0644)
		}
	default:
		usage()
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}
