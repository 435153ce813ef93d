package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"matchbook/internal/common"
	matchbookNet "matchbook/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'log']")

	ticker := flag.String("ticker", "AAPL", "Ticker symbol (max 4 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "gtc", "Order type: 'market', 'gfd', 'gtc', 'fak', 'fok'")
	price := flag.Int("price", 100, "Limit price (ignored for market orders)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	orderID := flag.Uint64("id", 0, "Order id to cancel")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}
	orderType, err := parseOrderType(*typeStr)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	switch strings.ToLower(*action) {
	case "place":
		quantities := parseQuantities(*qtyStr)
		for _, q := range quantities {
			err := sendPlaceOrder(conn, *owner, common.Equities, orderType, *ticker, common.Price(*price), common.Quantity(q), side)
			if err != nil {
				log.Printf("Failed to place order (Qty: %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s Order: %s %d @ %d\n", strings.ToUpper(*sideStr), *ticker, q, *price)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -id is required for cancellation")
		}
		if err := sendCancelOrder(conn, common.Equities, common.OrderId(*orderID)); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent Cancel Request for Order %d\n", *orderID)
		}

	case "log":
		if err := sendLog(conn); err != nil {
			log.Printf("Failed to send log request: %v", err)
		} else {
			fmt.Println("-> Sent Log Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func parseOrderType(s string) (common.OrderType, error) {
	switch strings.ToLower(s) {
	case "market":
		return common.Market, nil
	case "gfd":
		return common.GoodForDay, nil
	case "gtc":
		return common.GoodTillCancel, nil
	case "fak":
		return common.FillAndKill, nil
	case "fok":
		return common.FillOrKill, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

// parseQuantities splits a comma-separated string into a slice of uint32s.
func parseQuantities(input string) []uint32 {
	parts := strings.Split(input, ",")
	var result []uint32
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 32); err == nil {
			result = append(result, uint32(val))
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// sendPlaceOrder constructs and sends a NewOrder message.
func sendPlaceOrder(conn net.Conn, owner string, asset common.AssetType, orderType common.OrderType, ticker string, price common.Price, qty common.Quantity, side common.Side) error {
	usernameLen := len(owner)
	totalLen := matchbookNet.BaseMessageHeaderLen + matchbookNet.NewOrderMessageHeaderLen + usernameLen

	buf := make([]byte, totalLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(matchbookNet.NewOrder))

	binary.BigEndian.PutUint16(buf[2:4], uint16(asset))
	binary.BigEndian.PutUint16(buf[4:6], uint16(orderType))

	tickerBytes := make([]byte, 4)
	copy(tickerBytes, ticker)
	copy(buf[6:10], tickerBytes)

	binary.BigEndian.PutUint32(buf[10:14], uint32(int32(price)))
	binary.BigEndian.PutUint32(buf[14:18], uint32(qty))

	buf[18] = byte(side)
	buf[19] = uint8(usernameLen)

	copy(buf[20:], owner)

	_, err := conn.Write(buf)
	return err
}

// sendCancelOrder constructs and sends a CancelOrder message.
func sendCancelOrder(conn net.Conn, asset common.AssetType, id common.OrderId) error {
	buf := make([]byte, matchbookNet.BaseMessageHeaderLen+matchbookNet.CancelOrderMessageHeaderLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(matchbookNet.CancelOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(asset))
	binary.BigEndian.PutUint64(buf[4:12], uint64(id))

	_, err := conn.Write(buf)
	return err
}

func sendLog(conn net.Conn) error {
	buf := make([]byte, matchbookNet.BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(matchbookNet.LogBook))
	_, err := conn.Write(buf)
	return err
}

// reportFixedHeaderLen must match internal/net.reportFixedHeaderLen.
const reportFixedHeaderLen = 1 + 1 + 1 + 8 + 4 + 4 + 2 + 4 + 4 + 8

// readReports continuously reads and parses Report messages from the server.
func readReports(conn net.Conn) {
	for {
		headerBuf := make([]byte, reportFixedHeaderLen)
		_, err := io.ReadFull(conn, headerBuf)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := matchbookNet.ReportMessageType(headerBuf[0])
		side := common.Side(headerBuf[2])

		qty := binary.BigEndian.Uint32(headerBuf[11:15])
		price := int32(binary.BigEndian.Uint32(headerBuf[15:19]))
		counterpartyLen := binary.BigEndian.Uint16(headerBuf[19:21])
		errStrLen := binary.BigEndian.Uint32(headerBuf[21:25])
		ticker := string(headerBuf[25:29])
		orderID := binary.BigEndian.Uint64(headerBuf[29:37])

		totalVarLen := int(counterpartyLen) + int(errStrLen)
		varBuf := make([]byte, totalVarLen)
		if totalVarLen > 0 {
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				break
			}
		}

		errStr := ""
		counterparty := ""
		if errStrLen > 0 {
			errStr = string(varBuf[:errStrLen])
		}
		if counterpartyLen > 0 {
			counterparty = string(varBuf[errStrLen:])
		}

		if msgType == matchbookNet.ErrorReport {
			fmt.Printf("\n[SERVER ERROR] %s\n", errStr)
		} else {
			sideStr := "BUY"
			if side == common.Sell {
				sideStr = "SELL"
			}
			fmt.Printf("\n[EXECUTION] Match: %s %s | Qty: %d | Price: %d | vs: %s | OrderID: %d\n",
				sideStr, ticker, qty, price, counterparty, orderID)
		}
	}
}
