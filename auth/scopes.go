package auth

// OAuth scopes used by the workload.
const (
	// ScopeFabricWorkloadControl is required of subject tokens on
	// control-plane calls.
	ScopeFabricWorkloadControl = "FabricWorkloadControl"

	ScopeItem1ReadAll      = "Item1.Read.All"
	ScopeItem1ReadWriteAll = "Item1.ReadWrite.All"

	ScopeLakehouseReadAll      = "FabricLakehouse.Read.All"
	ScopeLakehouseReadWriteAll = "FabricLakehouse.ReadWrite.All"
)
