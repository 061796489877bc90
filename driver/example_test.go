// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"fmt"
	"log"
	"time"

	"github.com/gviegas/framepace/driver"
	_ "github.com/gviegas/framepace/driver/sim"
	"github.com/gviegas/framepace/wsi"
)

var (
	drv driver.Driver
	gpu driver.GPU
)

func init() {
	// Select a driver to use.
	drivers := driver.Drivers()
drvLoop:
	for i := range drivers {
		switch drivers[i].Name() {
		case "sim":
			drv = drivers[i]
			break drvLoop
		}
	}
	if drv == nil {
		log.Fatal("driver.Drivers(): driver not found")
	}
	var err error
	gpu, err = drv.Open()
	if err != nil {
		log.Fatal(err)
	}
}

// Example_present acquires, renders and presents a
// few frames, recreating the swapchain when the window
// is resized.
func Example_present() {
	win, err := wsi.NewWindow(480, 360, "Example_present")
	if err != nil {
		log.Fatal(err)
	}
	defer win.Close()
	sc, err := gpu.(driver.Presenter).NewSwapchain(win, 3)
	if err != nil {
		log.Fatal(err)
	}
	defer sc.Destroy()

	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		log.Fatal(err)
	}
	defer cb.Destroy()
	avail, err := gpu.NewSemaphore()
	if err != nil {
		log.Fatal(err)
	}
	defer avail.Destroy()
	done, err := gpu.NewSemaphore()
	if err != nil {
		log.Fatal(err)
	}
	defer done.Destroy()
	fence, err := gpu.NewFence(true)
	if err != nil {
		log.Fatal(err)
	}
	defer fence.Destroy()

	for i := 0; i < 4; i++ {
		if i == 2 {
			win.Resize(640, 360)
		}
		if err := fence.Wait(time.Second); err != nil {
			log.Fatal(err)
		}
		idx, st, err := sc.Next(avail)
		if err != nil {
			log.Fatal(err)
		}
		if st == driver.Stale {
			fmt.Println("frame", i, st)
			if err := gpu.WaitIdle(time.Second); err != nil {
				log.Fatal(err)
			}
			if err := sc.Recreate(); err != nil {
				log.Fatal(err)
			}
			continue
		}
		fence.Reset()
		cb.Reset()
		cb.Begin()
		// Render pass commands targeting sc.Images()[idx] go here.
		if err := cb.End(); err != nil {
			log.Fatal(err)
		}
		err = gpu.Commit(&driver.WorkItem{
			Work:   []driver.CmdBuffer{cb},
			Wait:   []driver.Semaphore{avail},
			WaitAt: []driver.Sync{driver.SColorOutput},
			Signal: []driver.Semaphore{done},
			Fence:  fence,
		})
		if err != nil {
			log.Fatal(err)
		}
		if st, err = sc.Present(idx, done); err != nil {
			log.Fatal(err)
		}
		fmt.Println("frame", i, st)
	}
	if err := gpu.WaitIdle(time.Second); err != nil {
		log.Fatal(err)
	}
	fmt.Println(sc.Extent().Width, sc.Extent().Height)

	// Output:
	// frame 0 ready
	// frame 1 ready
	// frame 2 stale
	// frame 3 ready
	// 640 360
}
