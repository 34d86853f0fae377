package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	bourseNet "bourse/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the bourse-server instance")
	action := flag.String("action", "place", "action to perform: place, cancel, step, log")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	market := flag.Bool("market", false, "submit as a market order (ignores -price)")
	price := flag.Uint64("price", 100, "limit price, in ticks")
	vol := flag.Uint64("vol", 10, "order volume")
	traderID := flag.Uint64("trader", 1, "trader id")
	orderID := flag.Uint64("order", 0, "order id, required for -action cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readReports(conn)

	switch strings.ToLower(*action) {
	case "place":
		side := strings.ToLower(*sideStr) == "buy"
		if err := sendNewOrder(conn, side, *market, uint32(*vol), *traderID, uint32(*price)); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Println("-> sent new order")
	case "cancel":
		if *orderID == 0 {
			log.Fatal("-order is required for -action cancel")
		}
		if err := sendCancelOrder(conn, *orderID); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for order %d\n", *orderID)
	case "step":
		if err := sendStep(conn); err != nil {
			log.Fatalf("failed to send step: %v", err)
		}
		fmt.Println("-> sent step")
	case "log":
		if err := sendLogBook(conn); err != nil {
			log.Fatalf("failed to send log request: %v", err)
		}
		fmt.Println("-> sent log request")
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (ctrl+C to exit)")
	select {}
}

func sendNewOrder(conn net.Conn, isBid, isMarket bool, vol uint32, traderID uint64, price uint32) error {
	buf := make([]byte, bourseNet.NewOrderMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(bourseNet.NewOrder))
	if isBid {
		buf[2] = 1
	}
	if isMarket {
		buf[3] = 1
	}
	binary.BigEndian.PutUint32(buf[4:8], vol)
	binary.BigEndian.PutUint64(buf[8:16], traderID)
	binary.BigEndian.PutUint32(buf[16:20], price)
	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, orderID uint64) error {
	buf := make([]byte, bourseNet.CancelOrderMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(bourseNet.CancelOrder))
	binary.BigEndian.PutUint64(buf[2:10], orderID)
	_, err := conn.Write(buf)
	return err
}

func sendStep(conn net.Conn) error {
	buf := make([]byte, bourseNet.BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(bourseNet.Step))
	_, err := conn.Write(buf)
	return err
}

func sendLogBook(conn net.Conn) error {
	buf := make([]byte, bourseNet.BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(bourseNet.LogBook))
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints Report messages from the
// server until the connection is closed.
func readReports(conn net.Conn) {
	fixedBuf := make([]byte, 30)
	for {
		if _, err := io.ReadFull(conn, fixedBuf); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := bourseNet.ReportMessageType(fixedBuf[0])
		orderID := binary.BigEndian.Uint64(fixedBuf[1:9])
		side := fixedBuf[9] != 0
		price := binary.BigEndian.Uint32(fixedBuf[10:14])
		vol := binary.BigEndian.Uint32(fixedBuf[14:18])
		errStrLen := binary.BigEndian.Uint32(fixedBuf[26:30])

		var errStr string
		if errStrLen > 0 {
			errBuf := make([]byte, errStrLen)
			if _, err := io.ReadFull(conn, errBuf); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
			errStr = string(errBuf)
		}

		if msgType == bourseNet.ErrorReport {
			fmt.Printf("\n[ERROR] %s\n", errStr)
			continue
		}

		sideStr := "SELL"
		if side {
			sideStr = "BUY"
		}
		fmt.Printf("\n[EXECUTION] order=%d side=%s price=%d vol=%d\n",
			orderID, sideStr, price, vol)
	}
}
