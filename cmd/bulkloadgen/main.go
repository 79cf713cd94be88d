// Command bulkloadgen opens a BulkLoader against a running database's
// procedure gateway and loads rows read from stdin, one CSV-ish "id,name"
// line at a time - a minimal stand-in for VoltDB's own CSVLoader CLI.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/conf"
	"github.com/rohithreddy/voltdb/ingest"
	"github.com/rohithreddy/voltdb/procedure"
	"github.com/rohithreddy/voltdb/procedure/grpcclient"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := conf.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	table := &common.TableInfo{
		Name: "events",
		Columns: []common.ColumnDescriptor{
			{Name: "id", Type: common.ColumnType{Type: common.TypeBigInt}},
			{Name: "name", Type: common.ColumnType{Type: common.TypeVarchar}},
		},
		MultiPartition:      false,
		PartitionColumnIdx:  0,
		PartitionColumnType: common.ColumnType{Type: common.TypeBigInt},
	}

	resolver := ingest.NewStaticPartitionResolver(map[string]int{table.Name: 8})

	var mgr *ingest.IngestManager
	client := grpcclient.NewGRPCProcedureClient(cfg.ServerAddress, cfg.HeartbeatInterval, func() {
		mgr.NotifyReconnected()
	})
	if err := client.Start(); err != nil {
		log.Fatalf("cannot connect to %s: %v", cfg.ServerAddress, err)
	}
	defer client.Stop()

	mgr = ingest.NewIngestManager(client, resolver, cfg.AutoReconnect, nil)

	var inserted, failed int64
	onSuccess := func(handle interface{}, resp *procedure.Response) {
		inserted++
	}
	onFailure := func(handle interface{}, values []interface{}, resp *procedure.Response) {
		failed++
		log.Warnf("row %v failed: %s", handle, resp.Message)
	}

	loader, err := ingest.NewBulkLoader(mgr, table, nil, false, cfg.DefaultQueueTrigger, onSuccess, onFailure)
	if err != nil {
		log.Fatalf("cannot open bulk loader: %v", err)
	}

	start := time.Now()
	scanner := bufio.NewScanner(os.Stdin)
	var lineNo int64
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			log.Warnf("skipping malformed line %d: %q", lineNo, line)
			continue
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			log.Warnf("skipping line %d, bad id: %v", lineNo, err)
			continue
		}
		if err := loader.Insert(lineNo, []interface{}{id, parts[1]}); err != nil {
			log.Fatalf("insert rejected before enqueue: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("error reading stdin: %v", err)
	}

	if err := loader.Close(); err != nil {
		log.Fatalf("drain failed: %v", err)
	}

	fmt.Printf("inserted=%d failed=%d elapsed=%s\n", inserted, failed, time.Since(start))
}
