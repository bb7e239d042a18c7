package exporter

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/laik/xnet/pkg/pipeline"
	"github.com/laik/xnet/pkg/report"
)

// Attacher is the runtime attach surface the API exposes, implemented by
// the capture manager.
type Attacher interface {
	Attach(iface string, withIngress bool) error
	Detach(iface string) error
	Attached() []string
}

// APIServer serves the traffic tables and accepts runtime device and
// attachment changes from the control plane.
type APIServer struct {
	apiKey   string
	tables   *pipeline.Tables
	devices  *pipeline.DeviceRegistry
	attacher Attacher
}

type deviceRequest struct {
	Name      string `json:"name" binding:"required"`
	Action    string `json:"action" binding:"required"`
	Direction string `json:"direction"`
}

type attachRequest struct {
	Iface  string `json:"iface" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func NewAPIServer(apiKey string, tables *pipeline.Tables, devices *pipeline.DeviceRegistry, attacher Attacher) *APIServer {
	return &APIServer{
		apiKey:   apiKey,
		tables:   tables,
		devices:  devices,
		attacher: attacher,
	}
}

func (a *APIServer) StartServer(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	return a.Handler().Run(addr)
}

func (a *APIServer) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if a.apiKey != "" {
		r.Use(a.authMiddleware())
	}

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/traffic", a.handleTraffic)
	r.GET("/traffic/ips", a.handleIPs)
	r.GET("/traffic/ports", a.handlePorts)
	r.GET("/traffic/connections", a.handleConnections)
	r.GET("/traffic/devices", a.handleDevices)
	r.POST("/devices", a.handleDeviceChange)
	r.POST("/attach", a.handleAttachChange)

	return r
}

func (a *APIServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth != "Bearer "+a.apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *APIServer) handleTraffic(c *gin.Context) {
	c.JSON(http.StatusOK, report.Collect(a.tables, a.devices))
}

func (a *APIServer) handleIPs(c *gin.Context) {
	s := report.Collect(a.tables, a.devices)
	c.JSON(http.StatusOK, gin.H{"ips": s.IPs})
}

func (a *APIServer) handlePorts(c *gin.Context) {
	s := report.Collect(a.tables, a.devices)
	c.JSON(http.StatusOK, gin.H{
		"total_packets": s.TotalPackets,
		"total_bytes":   s.TotalBytes,
		"ports":         s.Ports,
	})
}

func (a *APIServer) handleConnections(c *gin.Context) {
	s := report.Collect(a.tables, a.devices)
	c.JSON(http.StatusOK, gin.H{"connections": s.Connections})
}

func (a *APIServer) handleDevices(c *gin.Context) {
	s := report.Collect(a.tables, a.devices)
	c.JSON(http.StatusOK, gin.H{
		"devices":            s.Devices,
		"device_connections": s.DeviceConnections,
	})
}

func (a *APIServer) handleDeviceChange(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Action {
	case "add":
		dir := pipeline.DirIngress
		if req.Direction == "egress" {
			dir = pipeline.DirEgress
		}
		id := a.devices.Register(req.Name, dir)
		if id == 0 {
			c.JSON(http.StatusInsufficientStorage, gin.H{"error": "device table full"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"device_id": id})
	case "remove":
		a.devices.Unregister(req.Name)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be add or remove"})
	}
}

func (a *APIServer) handleAttachChange(c *gin.Context) {
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Action {
	case "add":
		if err := a.attacher.Attach(req.Iface, false); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	case "remove":
		if err := a.attacher.Detach(req.Iface); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be add or remove"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "attached": a.attacher.Attached()})
}
