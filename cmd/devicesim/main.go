// Command devicesim stands in for the watch on the device link. It prints
// every AppMessage it receives and answers with an ack, or a nack when
// --nack is set.
package main

import (
	"bufio"
	"encoding/json"
	"log"
	"net"

	"github.com/spf13/pflag"

	"github.com/qrow-bridge/internal/devicelink"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:8401", "device link address")
	nack := pflag.Bool("nack", false, "reject every message")
	pflag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	log.Printf("Connected to device link at %s", *addr)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var frame devicelink.Frame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			log.Printf("Bad frame: %v", err)
			continue
		}
		if frame.Type != devicelink.FrameAppMessage {
			continue
		}

		payload, err := json.Marshal(frame.Payload)
		if err != nil {
			log.Printf("Failed to encode payload of %s: %v", frame.TransactionID, err)
		} else {
			log.Printf("AppMessage %s: %s", frame.TransactionID, payload)
		}

		data, err := answer(frame, *nack)
		if err != nil {
			log.Printf("Failed to encode answer for %s: %v", frame.TransactionID, err)
			continue
		}
		if _, err := conn.Write(data); err != nil {
			log.Fatalf("Failed to answer: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("Connection error: %v", err)
	}
	log.Println("Device link closed the connection")
}

// answer encodes the newline-terminated ack or nack for an AppMessage frame
func answer(frame devicelink.Frame, nack bool) ([]byte, error) {
	reply := devicelink.Frame{Type: devicelink.FrameAck, TransactionID: frame.TransactionID}
	if nack {
		reply.Type = devicelink.FrameNack
		reply.Reason = "rejected by simulator"
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
