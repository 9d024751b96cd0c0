// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bttcrash repeatedly starts a child process hammering Writes
// against a BTT namespace file, kills it at a random point, and verifies
// that reopening the namespace recovers to a consistent state. Run with
// -test to act as the child dummie; run with no flags to act as the
// killer/verifier loop.
package main

import (
	"context"
	"flag"
	"log"
	"log/syslog"
	"math/rand"
	"os"
	"time"

	"github.com/cznic/btt/btt"
	"github.com/cznic/btt/namespace"
)

const (
	lbaSize  = 512
	nsSize   = 32 << 20
	nlbaSeed = 4096
)

var oFile = flag.String("f", "crash.btt", "crash test namespace file")

func dummie() {
	log.SetFlags(log.Flags() | log.Lshortfile)
	ns, err := namespace.OpenFileNamespace(*oFile)
	if err != nil {
		log.Fatal(err)
	}
	defer ns.Close()

	b, err := btt.Init(context.Background(), ns, lbaSize, btt.Options{})
	if err != nil {
		log.Fatal(err)
	}
	defer b.Fini()

	buf := make([]byte, lbaSize)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := time.After(time.Minute)
	for i := 0; ; i++ {
		select {
		case <-c:
			log.Fatal("timeout")
		default:
		}

		lba := int64(i % nlbaSeed)
		rng.Read(buf)
		buf[0] = byte(i)
		if err := b.Write(context.Background(), 0, lba, buf); err != nil {
			log.Fatal(err)
		}
	}
}

func main() {
	slg, err := syslog.NewLogger(syslog.LOG_USER|syslog.LOG_DEBUG, log.Lshortfile)
	if err != nil {
		log.Fatal(err)
	}

	oTest := flag.Bool("test", false, "run as a crash test dummie")
	flag.Parse()
	if *oTest {
		dummie()
		panic("unreachable")
	}

	slg.Print("bttcrash master started")
	for round := 1; ; round++ {
		os.Remove(*oFile)
		seed, err := namespace.CreateFileNamespace(*oFile, nsSize)
		if err != nil {
			slg.Fatal(err)
		}
		seed.Close()

		lifespan := time.Duration(2+rand.Intn(5)) * time.Second
		proc, err := os.StartProcess(
			os.Args[0],
			[]string{os.Args[0], "-test", "-f", *oFile},
			&os.ProcAttr{Files: []*os.File{os.Stdin, os.Stdout, os.Stderr}},
		)
		if err != nil {
			slg.Fatal(err)
		}

		<-time.After(lifespan)
		if err := proc.Kill(); err != nil {
			slg.Fatal(err)
		}
		proc.Wait()

		ns, err := namespace.OpenFileNamespace(*oFile)
		if err != nil {
			slg.Fatal(err)
		}

		b, err := btt.Init(context.Background(), ns, lbaSize, btt.Options{})
		if err != nil {
			slg.Fatal(err)
		}

		problems, err := b.Check(context.Background())
		if err != nil {
			slg.Fatal(err)
		}
		for _, p := range problems {
			slg.Fatal(p)
		}

		buf := make([]byte, lbaSize)
		for lba := int64(0); lba < nlbaSeed; lba++ {
			if err := b.Read(context.Background(), 0, lba, buf); err != nil {
				slg.Fatal(err)
			}
		}

		b.Fini()
		ns.Close()
		slg.Printf("round %d: survived %s, clean", round, lifespan)
	}
}
