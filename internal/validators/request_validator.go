package validators

type SubmitRequestRequest struct {
	IdempotencyKey string                 `json:"idempotency_key" validate:"omitempty,idempotency_key"`
	VehicleInfo    VehicleInfoRequest     `json:"vehicle_info" validate:"required"`
	Location       LocationRequest        `json:"location" validate:"required"`
	Emergency      EmergencyDetailRequest `json:"emergency_details" validate:"required"`
}

type VehicleInfoRequest struct {
	Type  string `json:"type" validate:"omitempty,max=50"`
	Brand string `json:"brand" validate:"omitempty,max=50"`
	Model string `json:"model" validate:"omitempty,max=50"`
	Year  int    `json:"year" validate:"omitempty,min=1950,max=2100"`
	Plate string `json:"plate" validate:"required,license_plate"`
}

type LocationRequest struct {
	Latitude       float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude      float64 `json:"longitude" validate:"min=-180,max=180"`
	Address        string  `json:"address" validate:"omitempty,max=255"`
	AccuracyMeters float64 `json:"accuracy_meters" validate:"omitempty,min=0"`
}

type EmergencyDetailRequest struct {
	Reason      string `json:"reason" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=1000"`
	Severity    string `json:"severity" validate:"required,oneof=critical high medium"`
}

type CancelRequestRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

type RespondRequest struct {
	RequestID string `json:"request_id" validate:"required,object_id"`
	Response  string `json:"response" validate:"required,oneof=accept reject"`
}

type ProgressRequest struct {
	Status string `json:"status" validate:"required,oneof=on_the_way arrived completed cancelled"`
}

func ValidateSubmitRequest(req *SubmitRequestRequest) ValidationErrors {
	errors := ValidateStruct(req)

	// A zero/zero point is the null island sentinel for a missing fix.
	if req.Location.Latitude == 0 && req.Location.Longitude == 0 {
		errors = append(errors, ValidationError{
			Field:   "location",
			Message: "Breakdown coordinates are required",
		})
	}

	return errors
}

func ValidateRespondRequest(req *RespondRequest) ValidationErrors {
	return ValidateStruct(req)
}

func ValidateProgressRequest(req *ProgressRequest) ValidationErrors {
	return ValidateStruct(req)
}

type ProviderRegisterRequest struct {
	Name         string  `json:"name" validate:"required,min=2,max=100"`
	Phone        string  `json:"phone" validate:"omitempty,phone_number"`
	TruckType    string  `json:"truck_type" validate:"omitempty,oneof=flatbed wheel_lift hook_and_chain integrated"`
	TruckPlate   string  `json:"truck_plate" validate:"omitempty,license_plate"`
	MaxTowWeight float64 `json:"max_tow_weight" validate:"omitempty,min=0"`
}

type ProviderLocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

type ProviderAvailabilityRequest struct {
	Available bool `json:"available"`
}

type DeviceTokenRequest struct {
	Platform string `json:"platform" validate:"required,oneof=fcm apns"`
	Token    string `json:"token" validate:"required,min=8,max=4096"`
}

func ValidateProviderRegisterRequest(req *ProviderRegisterRequest) ValidationErrors {
	return ValidateStruct(req)
}

func ValidateProviderLocationRequest(req *ProviderLocationRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.Latitude == 0 && req.Longitude == 0 {
		errors = append(errors, ValidationError{
			Field:   "location",
			Message: "Coordinates are required",
		})
	}

	return errors
}

func ValidateDeviceTokenRequest(req *DeviceTokenRequest) ValidationErrors {
	return ValidateStruct(req)
}
