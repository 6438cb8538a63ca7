package decode

// PD message type names, keyed by the 5-bit type field. Control messages
// carry zero data objects, data messages at least one.
var controlNames = map[int]string{
	1:  "GoodCRC",
	2:  "GotoMin",
	3:  "Accept",
	4:  "Reject",
	5:  "Ping",
	6:  "PS_RDY",
	7:  "Get_Source_Cap",
	8:  "Get_Sink_Cap",
	9:  "DR_Swap",
	10: "PR_Swap",
	11: "VCONN_Swap",
	12: "Wait",
	13: "Soft_Reset",
	14: "Data_Reset",
	15: "Data_Reset_Complete",
	16: "Not_Supported",
	17: "Get_Source_Cap_Extended",
	18: "Get_Status",
	19: "FR_Swap",
	20: "Get_PPS_Status",
	21: "Get_Country_Codes",
	22: "Get_Sink_Cap_Extended",
	23: "Get_Source_Info",
	24: "Get_Revision",
}

var dataNames = map[int]string{
	1:  "Source_Capabilities",
	2:  "Request",
	3:  "BIST",
	4:  "Sink_Capabilities",
	5:  "Battery_Status",
	6:  "Alert",
	7:  "Get_Country_Info",
	8:  "Enter_USB",
	9:  "EPR_Request",
	10: "EPR_Mode",
	11: "Source_Info",
	12: "Revision",
	15: "Vendor_Defined",
}

func typeName(msgType, ndo int) string {
	var name string
	var ok bool
	if ndo > 0 {
		name, ok = dataNames[msgType]
	} else {
		name, ok = controlNames[msgType]
	}
	if !ok {
		if ndo > 0 {
			return "Data_Reserved"
		}
		return "Ctrl_Reserved"
	}
	return name
}

// IsCapability reports whether m announces source capabilities, in either
// the SPR or EPR form.
func IsCapability(m *Message) bool {
	if m == nil || m.Class != ClassProtocol {
		return false
	}
	switch m.Kind() {
	case "Source_Capabilities", "EPR_Source_Capabilities":
		return true
	}
	return false
}

// IsRequest reports whether m is a sink power request, SPR or EPR.
func IsRequest(m *Message) bool {
	if m == nil || m.Class != ClassProtocol {
		return false
	}
	switch m.Kind() {
	case "Request", "EPR_Request":
		return true
	}
	return false
}
