package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/driftkv/client"
	"github.com/danmuck/driftkv/crdt"
	"github.com/danmuck/driftkv/internal/config"
	"github.com/danmuck/driftkv/internal/logging"
)

const usage = `driftctl -addr host:port [-config file] <command> [args]

commands:
  incr <key> <amount>          increment a counter
  decr <key> <amount>          decrement a counter
  sadd <key> <elem...>         add elements to a set
  srem <key> <elem...>         remove elements from a set
  get-counter <key>            read a counter
  get-set <key>                read a set
  atomic <key:op:arg...>       all-or-nothing multi-key write (op: incr|decr|sadd|srem)
  snapshot <key:type...>       consistent multi-key read (type: counter|set)
`

func main() {
	addr := flag.String("addr", "", "store address host:port")
	configPath := flag.String("config", "", "path to driftctl TOML config")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := client.DefaultConfig()
	target := *addr
	if *configPath != "" {
		fileCfg, err := config.LoadClientConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg.ConnectTimeout = fileCfg.ConnectTimeout()
		cfg.RequestTimeout = fileCfg.RequestTimeout()
		cfg.KeepAlive = fileCfg.KeepAlive
		cfg.TLS = client.TLSConfig{
			Enabled:            fileCfg.TLS.Enabled,
			ServerName:         fileCfg.TLS.ServerName,
			CAFile:             fileCfg.TLS.CAFile,
			InsecureSkipVerify: fileCfg.TLS.InsecureSkipVerify,
		}
		if target == "" {
			target = fileCfg.Address
		}
	}
	if target == "" || flag.NArg() == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	sess, err := client.Connect(ctx, target, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("addr", target).Msg("connect")
	}
	defer sess.Close()

	if err := run(ctx, sess, flag.Args()); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func run(ctx context.Context, sess *client.Session, args []string) error {
	command := args[0]
	args = args[1:]

	switch command {
	case "incr", "decr":
		if len(args) != 2 {
			return fmt.Errorf("%s: want <key> <amount>", command)
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parse amount: %w", err)
		}
		counter := crdt.NewCounter(args[0])
		if command == "incr" {
			counter.Increment(amount)
		} else {
			counter.Decrement(amount)
		}
		if err := sess.Store(ctx, counter); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "sadd", "srem":
		if len(args) < 2 {
			return fmt.Errorf("%s: want <key> <elem...>", command)
		}
		set := crdt.NewSet(args[0])
		for _, elem := range args[1:] {
			if command == "sadd" {
				set.Add([]byte(elem))
			} else {
				set.Remove([]byte(elem))
			}
		}
		if err := sess.Store(ctx, set); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "get-counter":
		if len(args) != 1 {
			return fmt.Errorf("get-counter: want <key>")
		}
		obj, err := sess.Get(ctx, args[0], crdt.TypeCounter)
		if err != nil {
			return err
		}
		fmt.Println(obj.(*crdt.Counter).Value())
		return nil

	case "get-set":
		if len(args) != 1 {
			return fmt.Errorf("get-set: want <key>")
		}
		obj, err := sess.Get(ctx, args[0], crdt.TypeSet)
		if err != nil {
			return err
		}
		for _, elem := range obj.(*crdt.Set).Elements() {
			fmt.Println(string(elem))
		}
		return nil

	case "atomic":
		if len(args) == 0 {
			return fmt.Errorf("atomic: want <key:op:arg...>")
		}
		objs := make([]crdt.Object, 0, len(args))
		for _, arg := range args {
			obj, err := atomicObject(arg)
			if err != nil {
				return err
			}
			objs = append(objs, obj)
		}
		clock, err := sess.AtomicStore(ctx, objs, nil)
		if err != nil {
			return err
		}
		fmt.Printf("clock=%x\n", []byte(clock))
		return nil

	case "snapshot":
		if len(args) == 0 {
			return fmt.Errorf("snapshot: want <key:type...>")
		}
		specs := make([]client.KeySpec, 0, len(args))
		for _, arg := range args {
			key, typeName, ok := splitSpec(arg)
			if !ok {
				return fmt.Errorf("snapshot: invalid spec %q, want key:type", arg)
			}
			t, err := crdt.ParseDataType(typeName)
			if err != nil {
				return err
			}
			specs = append(specs, client.KeySpec{Key: key, Type: t})
		}
		clock, objs, err := sess.SnapshotGet(ctx, specs, nil)
		if err != nil {
			return err
		}
		fmt.Printf("clock=%x\n", []byte(clock))
		for _, obj := range objs {
			switch o := obj.(type) {
			case *crdt.Counter:
				fmt.Printf("%s=%d\n", o.Key(), o.Value())
			case *crdt.Set:
				fmt.Printf("%s=%d elements\n", o.Key(), len(o.Elements()))
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// atomicObject parses one key:op:arg argument into an object staging that
// single update. Keys may themselves contain colons; the op and arg are the
// last two segments.
func atomicObject(spec string) (crdt.Object, error) {
	head, value, ok := splitSpec(spec)
	if !ok {
		return nil, fmt.Errorf("atomic: invalid spec %q, want key:op:arg", spec)
	}
	key, op, ok := splitSpec(head)
	if !ok {
		return nil, fmt.Errorf("atomic: invalid spec %q, want key:op:arg", spec)
	}

	switch op {
	case "incr", "decr":
		amount, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("atomic: parse amount in %q: %w", spec, err)
		}
		counter := crdt.NewCounter(key)
		if op == "incr" {
			counter.Increment(amount)
		} else {
			counter.Decrement(amount)
		}
		return counter, nil

	case "sadd", "srem":
		set := crdt.NewSet(key)
		if op == "sadd" {
			set.Add([]byte(value))
		} else {
			set.Remove([]byte(value))
		}
		return set, nil

	default:
		return nil, fmt.Errorf("atomic: unknown op %q in %q", op, spec)
	}
}

func splitSpec(arg string) (key, typeName string, ok bool) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] == ':' {
			return arg[:i], arg[i+1:], i > 0 && i < len(arg)-1
		}
	}
	return "", "", false
}
