// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bttcheck opens a BTT namespace file and reports any map
// inconsistency it finds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cznic/btt/btt"
	"github.com/cznic/btt/namespace"
)

var (
	oFile    = flag.String("f", "", "namespace file to check (required)")
	oLBASize = flag.Uint("lbasize", 4096, "external LBA size")
	oNFree   = flag.Uint("nfree", uint(btt.DefaultNFree), "free blocks per arena")
	oVerbose = flag.Bool("v", false, "verbose logging")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	if *oFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	var zlog *zap.Logger
	if *oVerbose {
		zlog, _ = zap.NewDevelopment()
	} else {
		zlog = zap.NewNop()
	}

	ns, err := namespace.OpenFileNamespace(*oFile)
	if err != nil {
		log.Fatal(err)
	}
	defer ns.Close()

	ctx := context.Background()
	b, err := btt.Init(ctx, ns, uint32(*oLBASize), btt.Options{NFree: uint32(*oNFree), Log: zlog})
	if err != nil {
		log.Fatal(err)
	}
	defer b.Fini()

	problems, err := b.Check(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if len(problems) == 0 {
		fmt.Printf("%s: %d lbas, no inconsistencies found\n", *oFile, b.NLBA())
		return
	}

	for _, p := range problems {
		fmt.Println(p)
	}
	os.Exit(1)
}
