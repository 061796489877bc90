// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

// Package vk implements driver interfaces using the
// Vulkan API.
// It requires cgo, a Vulkan loader and GLFW, so it is
// only built with the vulkan build tag.
package vk

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/goki/vulkan"

	"github.com/gviegas/framepace/driver"
	"github.com/gviegas/framepace/wsi"
)

const driverName = "vulkan"

// Driver implements driver.Driver, driver.GPU and
// driver.Presenter.
type Driver struct {
	inst  vulkan.Instance
	pdev  vulkan.PhysicalDevice
	dname string
	dev   vulkan.Device
	que   vulkan.Queue
	qfam  uint32
	// Queue operations require external synchronization.
	qmu   sync.Mutex
	pool  vulkan.CommandPool
	pmu   sync.Mutex
	mprop vulkan.PhysicalDeviceMemoryProperties
	exts  [extN]bool
	dbg   vulkan.DebugReportCallback
}

func init() {
	driver.Register(&Driver{})
}

// Loader state. GLFW and the Vulkan loader are set up
// once per process.
var (
	loadOnce sync.Once
	loadErr  error
)

// load initializes GLFW and the Vulkan loader.
func load() error {
	loadOnce.Do(func() {
		if err := glfw.Init(); err != nil {
			loadErr = errors.Join(driver.ErrNotInstalled, errors.Wrap(err, "vk: glfw"))
			return
		}
		if !glfw.VulkanSupported() {
			loadErr = errors.Wrap(driver.ErrNotInstalled, "vk: Vulkan loader not found")
			return
		}
		vulkan.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
		if err := vulkan.Init(); err != nil {
			loadErr = errors.Join(driver.ErrNotInstalled, errors.Wrap(err, "vk: loader"))
		}
	})
	return loadErr
}

// initInstance initializes the Vulkan instance.
func (d *Driver) initInstance() error {
	var names, layers []string
	if from, err := instanceExts(); err == nil {
		names = d.selectInstanceExts(from)
		var dbg []string
		layers, dbg = d.selectValidation(from)
		names = append(names, dbg...)
	}
	app := wsi.AppName()
	if app == "" {
		app = "framepace"
	}
	info := vulkan.InstanceCreateInfo{
		SType: vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vulkan.ApplicationInfo{
			SType:              vulkan.StructureTypeApplicationInfo,
			PApplicationName:   cstr(app),
			ApplicationVersion: vulkan.MakeVersion(1, 0, 0),
			PEngineName:        cstr("framepace"),
			EngineVersion:      vulkan.MakeVersion(1, 0, 0),
			ApiVersion:         vulkan.ApiVersion10,
		},
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
	}
	var inst vulkan.Instance
	if err := checkResult(vulkan.CreateInstance(&info, nil, &inst)); err != nil {
		return errors.Wrap(err, "vk: create instance")
	}
	d.inst = inst
	if err := vulkan.InitInstance(inst); err != nil {
		return errors.Wrap(err, "vk: instance procs")
	}
	return d.initDebugReport()
}

// initDevice selects a physical device and creates the
// logical device with a single graphics queue.
func (d *Driver) initDevice() error {
	var n uint32
	if err := checkResult(vulkan.EnumeratePhysicalDevices(d.inst, &n, nil)); err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	devs := make([]vulkan.PhysicalDevice, n)
	if err := checkResult(vulkan.EnumeratePhysicalDevices(d.inst, &n, devs)); err != nil {
		return err
	}

	// The bare minimum is a device with a graphics queue.
	// Devices that can create swapchains and that are
	// hardware-accelerated are preferred.
	weight := 0
	for _, dev := range devs[:n] {
		var prop vulkan.PhysicalDeviceProperties
		vulkan.GetPhysicalDeviceProperties(dev, &prop)
		prop.Deref()
		fam, ok := graphicsFamily(dev)
		if !ok {
			continue
		}
		wgt := 1
		switch prop.DeviceType {
		case vulkan.PhysicalDeviceTypeDiscreteGpu:
			wgt += 2
		case vulkan.PhysicalDeviceTypeIntegratedGpu:
			wgt++
		}
		if exts, err := deviceExts(dev); err == nil && hasExt(exts, extSwapchainS) {
			wgt += 4
		}
		if wgt > weight {
			d.pdev = dev
			d.qfam = fam
			d.dname = vulkan.ToString(prop.DeviceName[:])
			weight = wgt
		}
	}
	if weight == 0 {
		return driver.ErrNoDevice
	}
	vulkan.GetPhysicalDeviceMemoryProperties(d.pdev, &d.mprop)
	d.mprop.Deref()

	var names []string
	if from, err := deviceExts(d.pdev); err == nil && d.exts[extSurface] && hasExt(from, extSwapchainS) {
		names = []string{cstr(extSwapchainS)}
		d.exts[extSwapchain] = true
	}
	info := vulkan.DeviceCreateInfo{
		SType:                vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vulkan.DeviceQueueCreateInfo{{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.qfam,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
	}
	var dev vulkan.Device
	if err := checkResult(vulkan.CreateDevice(d.pdev, &info, nil, &dev)); err != nil {
		return errors.Wrap(err, "vk: create device")
	}
	d.dev = dev
	var que vulkan.Queue
	vulkan.GetDeviceQueue(d.dev, d.qfam, 0, &que)
	d.que = que

	pinfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.qfam,
	}
	var pool vulkan.CommandPool
	if err := checkResult(vulkan.CreateCommandPool(d.dev, &pinfo, nil, &pool)); err != nil {
		return errors.Wrap(err, "vk: create command pool")
	}
	d.pool = pool
	return nil
}

// graphicsFamily returns the index of the first queue
// family of dev that supports graphics operations.
func graphicsFamily(dev vulkan.PhysicalDevice) (uint32, bool) {
	var n uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &n, nil)
	props := make([]vulkan.QueueFamilyProperties, n)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &n, props)
	for i := range props[:n] {
		props[i].Deref()
		if props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// Open initializes the driver.
func (d *Driver) Open() (gpu driver.GPU, err error) {
	if d.dev != nil {
		return d, nil
	}
	defer func() {
		if err != nil {
			d.Close()
			gpu = nil
		}
	}()
	if err = load(); err != nil {
		return
	}
	if err = d.initInstance(); err != nil {
		return
	}
	if err = d.initDevice(); err != nil {
		return
	}
	slog.Info("vulkan device opened",
		slog.String("device", d.dname),
		slog.Bool("present", d.exts[extSwapchain]))
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	if d.inst != nil {
		if d.dev != nil {
			vulkan.DeviceWaitIdle(d.dev)
			if d.pool != vulkan.CommandPool(vulkan.NullHandle) {
				vulkan.DestroyCommandPool(d.dev, d.pool, nil)
			}
			vulkan.DestroyDevice(d.dev, nil)
		}
		if d.dbg != vulkan.NullDebugReportCallback {
			vulkan.DestroyDebugReportCallback(d.inst, d.dbg, nil)
		}
		vulkan.DestroyInstance(d.inst, nil)
	}
	*d = Driver{}
}

// Driver returns d.
func (d *Driver) Driver() driver.Driver { return d }

// DeviceName returns the name of the physical device that
// the driver is using.
func (d *Driver) DeviceName() string { return d.dname }

// selectMemory selects a memory type allowed by typeBits
// that has every flag in prop.
// It returns -1 if none suffices.
func (d *Driver) selectMemory(typeBits uint32, prop vulkan.MemoryPropertyFlagBits) int {
	flg := vulkan.MemoryPropertyFlags(prop)
	for i := 0; i < int(d.mprop.MemoryTypeCount); i++ {
		if 1<<i&typeBits == 0 {
			continue
		}
		typ := d.mprop.MemoryTypes[i]
		typ.Deref()
		if typ.PropertyFlags&flg == flg {
			return i
		}
	}
	return -1
}

// checkResult returns an error derived from a Result.
// If res does not indicate an error, it returns nil.
func checkResult(res vulkan.Result) error {
	switch res {
	case vulkan.Success, vulkan.Suboptimal, vulkan.Incomplete:
		return nil
	case vulkan.Timeout, vulkan.NotReady:
		return errors.WithStack(driver.ErrTimeout)
	case vulkan.ErrorOutOfHostMemory:
		return errors.WithStack(driver.ErrNoHostMemory)
	case vulkan.ErrorOutOfDeviceMemory:
		return errors.WithStack(driver.ErrNoDeviceMemory)
	case vulkan.ErrorDeviceLost:
		return errors.Wrap(driver.ErrFatal, "vk: device lost")
	case vulkan.ErrorIncompatibleDriver, vulkan.ErrorInitializationFailed:
		return errors.Wrap(driver.ErrNotInstalled, "vk: no compatible implementation")
	case vulkan.ErrorExtensionNotPresent:
		return errNoExtension
	case vulkan.ErrorSurfaceLost, vulkan.ErrorNativeWindowInUse:
		return errors.Join(driver.ErrWindow, errors.Wrap(vulkan.Error(res), "vk: surface"))
	case vulkan.ErrorOutOfDate:
		return errOutOfDate
	}
	return errors.Wrapf(vulkan.Error(res), "vk: result %d", res)
}

var (
	errNoExtension = errors.New("vk: extension not present")
	errOutOfDate   = errors.New("vk: swapchain out of date")
)

// cstr returns s terminated by a NUL byte.
func cstr(s string) string { return s + "\x00" }
